package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown             = "UNKNOWN"
	CodeSchemaViolation     = "SCHEMA_VIOLATION"
	CodeIdentityConflict    = "IDENTITY_CONFLICT"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeNotFound            = "NOT_FOUND"
	CodeUnsupportedRelation = "UNSUPPORTED_RELATION"
	CodeDanglingReference   = "DANGLING_REFERENCE"
	CodeCapabilityMismatch  = "CAPABILITY_MISMATCH"
	CodeNegativeBalance     = "NEGATIVE_BALANCE"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeRuleMismatch        = "RULE_MISMATCH"
	CodeInconsistentBalance = "INCONSISTENT_BALANCE"
	CodeRemovalBlocked      = "REMOVAL_BLOCKED"
	CodeUnauthorizedActor   = "UNAUTHORIZED_ACTOR"
	CodeContention          = "CONTENTION"
)

var enUS = map[Code]string{
	CodeUnknown:             "An unexpected error occurred.",
	CodeSchemaViolation:     "The {{.kind}} entity does not match the entity catalog.",
	CodeIdentityConflict:    "The identifier {{.id}} is already in use.",
	CodeInvalidArgument:     "The request is invalid: {{.field}}.",
	CodeNotFound:            "Nothing was found for {{.id}}.",
	CodeUnsupportedRelation: "A {{.kind}} has no {{.relation}} relationship.",
	CodeDanglingReference:   "The referenced entity {{.id}} does not exist.",
	CodeCapabilityMismatch:  "{{.id}} cannot act as the {{.role}} of this transaction.",
	CodeNegativeBalance:     "Account {{.account_id}} does not have enough funds.",
	CodeInvalidAmount:       "Amounts must be greater than zero.",
	CodeRuleMismatch:        "The distribution does not match funding rule {{.rule_id}}.",
	CodeInconsistentBalance: "The balance of account {{.account_id}} is inconsistent with its history.",
	CodeRemovalBlocked:      "{{.id}} cannot be removed yet.",
	CodeUnauthorizedActor:   "{{.actor_id}} is not allowed to manage this family.",
	CodeContention:          "The account is busy, please try again.",
}

var ptBR = map[Code]string{
	CodeUnknown:             "Ocorreu um erro inesperado.",
	CodeSchemaViolation:     "A entidade {{.kind}} não corresponde ao catálogo.",
	CodeIdentityConflict:    "O identificador {{.id}} já está em uso.",
	CodeInvalidArgument:     "A requisição é inválida: {{.field}}.",
	CodeNotFound:            "Nada foi encontrado para {{.id}}.",
	CodeUnsupportedRelation: "Um {{.kind}} não possui a relação {{.relation}}.",
	CodeDanglingReference:   "A entidade referenciada {{.id}} não existe.",
	CodeCapabilityMismatch:  "{{.id}} não pode atuar como {{.role}} desta transação.",
	CodeNegativeBalance:     "A conta {{.account_id}} não possui saldo suficiente.",
	CodeInvalidAmount:       "Os valores devem ser maiores que zero.",
	CodeRuleMismatch:        "A distribuição não corresponde à regra {{.rule_id}}.",
	CodeInconsistentBalance: "O saldo da conta {{.account_id}} está inconsistente com o histórico.",
	CodeRemovalBlocked:      "{{.id}} ainda não pode ser removido.",
	CodeUnauthorizedActor:   "{{.actor_id}} não pode administrar esta família.",
	CodeContention:          "A conta está ocupada, tente novamente.",
}
