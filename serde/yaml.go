package serde

import (
	"io"

	"github.com/goccy/go-yaml"
)

// YAMLSerializer 基于 goccy/go-yaml 的序列化器，indent 为空时使用两个空格
type YAMLSerializer struct{}

func (YAMLSerializer) Serialize(w io.Writer, v any, indent string) error {
	opts := []yaml.EncodeOption{}
	if n := len(indent); n > 0 {
		opts = append(opts, yaml.Indent(n))
	}
	enc := yaml.NewEncoder(w, opts...)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (YAMLSerializer) Deserialize(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
