package auth

import (
	"net/http"
	"testing"
)

func TestApply_Bearer(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/responses", nil)

	if err := Apply(StaticKey("sk-test"), req, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if req.Header.Get("api-key") != "" {
		t.Error("api-key header must not be set for non-Azure endpoints")
	}
}

func TestApply_AzureAPIKey(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "https://foo.openai.azure.com/openai/v1/responses", nil)

	if err := Apply(StaticKey("az-key"), req, true); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := req.Header.Get("api-key"); got != "az-key" {
		t.Errorf("api-key = %q", got)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("Authorization header must not be set for Azure endpoints")
	}
}

func TestApply_MissingCredentials(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/responses", nil)

	if err := Apply(StaticKey(""), req, false); err != ErrNoCredentials {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
	if err := Apply(nil, req, false); err != ErrNoCredentials {
		t.Errorf("nil creds err = %v, want ErrNoCredentials", err)
	}
}

func TestApply_AccountID(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/responses", nil)

	creds := AccountKey{Key: "sk-1", Account: "acct-9"}
	if err := Apply(creds, req, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := req.Header.Get("ChatGPT-Account-ID"); got != "acct-9" {
		t.Errorf("ChatGPT-Account-ID = %q", got)
	}
}
