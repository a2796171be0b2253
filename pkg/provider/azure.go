package provider

import (
	"encoding/json"
	"strings"

	"github.com/anfrage-dev/anfrage/pkg/api"
)

// azureDomainMarkers identify Azure OpenAI endpoints. The patterns are
// checked case-insensitively against the base URL so deployments are
// detected without explicit configuration.
var azureDomainMarkers = []string{
	"openai.azure.",
	"cognitiveservices.azure.",
	"aoai.azure.",
	"azure-api.",
	"azurefd.",
	"windows.net/openai",
}

// IsAzureBaseURL reports whether the given base URL appears to be an
// Azure OpenAI endpoint.
func IsAzureBaseURL(baseURL string) bool {
	lower := strings.ToLower(baseURL)
	for _, marker := range azureDomainMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IsAzureEndpoint reports whether the profile points at Azure, either
// by explicit name or by base URL detection.
func IsAzureEndpoint(name, baseURL string) bool {
	return strings.EqualFold(name, "azure") || IsAzureBaseURL(baseURL)
}

// AttachItemIDs patches a serialized request payload so every input
// item carries its server-assigned ID. Azure requires item IDs on
// chained input; the standard wire format omits empty IDs, so this pass
// runs on the marshaled JSON rather than the typed items.
func AttachItemIDs(payload []byte, items []api.Item) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}

	rawInput, ok := doc["input"]
	if !ok {
		return payload, nil
	}

	var input []map[string]any
	if err := json.Unmarshal(rawInput, &input); err != nil {
		return payload, nil
	}

	for i := range input {
		if i >= len(items) {
			break
		}
		if id := items[i].ID; id != "" {
			input[i]["id"] = id
		}
	}

	patched, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	doc["input"] = patched

	return json.Marshal(doc)
}
