package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jamiechicago312/agent-sdk/internal/llm"
)

// ReconcileLLM checks a persisted LLM config against the runtime one and
// re-injects the runtime's secrets. Secrets are redacted on
// serialization, so the persisted copy never carries them; any
// difference in a non-secret field is a load-time error.
func ReconcileLLM(persisted, runtime llm.Config) (llm.Config, error) {
	if err := compareNonSecret(persisted, runtime); err != nil {
		return llm.Config{}, err
	}
	persisted.APIKey = runtime.APIKey
	persisted.AWSAccessKeyID = runtime.AWSAccessKeyID
	persisted.AWSSecretAccessKey = runtime.AWSSecretAccessKey
	return persisted, nil
}

func compareNonSecret(a, b llm.Config) error {
	stripSecrets(&a)
	stripSecrets(&b)
	aJSON, err := json.Marshal(a)
	if err != nil {
		return err
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if !bytes.Equal(aJSON, bJSON) {
		return fmt.Errorf("persisted llm config %q does not match runtime config", a.ServiceID)
	}
	return nil
}

func stripSecrets(c *llm.Config) {
	c.APIKey = ""
	c.AWSAccessKeyID = ""
	c.AWSSecretAccessKey = ""
}
