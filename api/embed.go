// Package api 内嵌的 OpenAPI 文档
package api

import (
	"context"
	"embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi/*.yaml
var OpenAPIFS embed.FS

// SpecPath 内嵌文档路径
const SpecPath = "openapi/openapi.yaml"

// RawSpec 返回 YAML 原文
func RawSpec() ([]byte, error) {
	return OpenAPIFS.ReadFile(SpecPath)
}

// LoadSpec 解析并校验 OpenAPI 文档
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	data, err := RawSpec()
	if err != nil {
		return nil, fmt.Errorf("read openapi spec: %w", err)
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}
