package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadDocument reads and unmarshals the catalogue document at path. Callers
// normally go through NewRegistry / Registry.Reload instead of calling
// this directly.
func LoadDocument(path string) (*Document, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
	}

	var doc Document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal %s: %w", path, err)
	}

	if err := Validate(doc.Agents); err != nil {
		return nil, err
	}

	return &doc, nil
}

// LoadState reads the mutable overrides/profile document at path. A missing
// file is not an error: it yields an empty State selecting no profile.
func LoadState(path string) (*State, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		st := &State{}
		st.ensureMaps()
		return st, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("config: failed to load state %s: %w", path, err)
	}

	var st State
	if err := k.UnmarshalWithConf("", &st, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal state %s: %w", path, err)
	}
	st.ensureMaps()
	return &st, nil
}
