package serde

import (
	"io"

	"github.com/BurntSushi/toml"
)

// TOMLSerializer 基于 BurntSushi/toml 的序列化器
type TOMLSerializer struct{}

func (TOMLSerializer) Serialize(w io.Writer, v any, indent string) error {
	enc := toml.NewEncoder(w)
	if indent != "" {
		enc.Indent = indent
	}
	return enc.Encode(v)
}

func (TOMLSerializer) Deserialize(r io.Reader, v any) error {
	_, err := toml.NewDecoder(r).Decode(v)
	return err
}
