package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	fallback := GetCatalog("missing-locale")
	if fallback != base {
		t.Fatal("expected fallback to en-US catalog")
	}
	if GetCatalog("") != base {
		t.Fatal("expected empty locale to use en-US catalog")
	}
}

func TestGetCatalogMatchesPortuguese(t *testing.T) {
	cat := GetCatalog("pt-BR")
	if cat.Locale() != "pt-BR" {
		t.Fatalf("locale = %q, want pt-BR", cat.Locale())
	}
	got := cat.Format(CodeNegativeBalance, map[string]string{"account_id": "acc-1"})
	want := "A conta acc-1 não possui saldo suficiente."
	if got != want {
		t.Fatalf("format = %q, want %q", got, want)
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := GetCatalog("en-US")
	if cat.Format("unknown-code", nil) != "unknown-code" {
		t.Fatal("expected code fallback when template missing")
	}
	if got := cat.Format(CodeNotFound, nil); got != "Nothing was found for ." {
		t.Fatalf("expected template to render missing metadata, got %q", got)
	}
}

func TestEveryCodeHasTranslations(t *testing.T) {
	for code := range enUS {
		if _, ok := ptBR[code]; !ok {
			t.Fatalf("missing pt-BR message for %s", code)
		}
	}
}
