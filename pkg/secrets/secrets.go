// Package secrets provides an opaque string type that redacts itself on
// serialization. Persisted configuration never contains live credentials;
// they are re-injected from the runtime configuration on load.
package secrets

import "encoding/json"

// Redacted is the placeholder written in place of any secret value.
const Redacted = "****"

// Secret is an opaque credential. It marshals as "****" (JSON and YAML)
// and never appears in logs via %v or %s.
type Secret string

// Value returns the underlying secret value.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether the secret holds a non-empty value.
func (s Secret) IsSet() bool { return s != "" }

// String implements fmt.Stringer, returning the redaction placeholder so
// secrets cannot leak through formatted output.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return Redacted
}

// MarshalJSON writes "****" for non-empty secrets.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal(Redacted)
}

// UnmarshalJSON accepts either a live value or the redaction placeholder.
// The placeholder unmarshals to the empty secret; the caller is expected
// to re-inject the real value from runtime configuration.
func (s *Secret) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == Redacted {
		*s = ""
		return nil
	}
	*s = Secret(v)
	return nil
}

// MarshalYAML writes "****" for non-empty secrets.
func (s Secret) MarshalYAML() (any, error) {
	if s == "" {
		return "", nil
	}
	return Redacted, nil
}

// UnmarshalYAML accepts either a live value or the redaction placeholder.
func (s *Secret) UnmarshalYAML(unmarshal func(any) error) error {
	var v string
	if err := unmarshal(&v); err != nil {
		return err
	}
	if v == Redacted {
		*s = ""
		return nil
	}
	*s = Secret(v)
	return nil
}
