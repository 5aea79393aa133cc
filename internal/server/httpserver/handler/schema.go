package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yndnr/sightingdb-go/internal/core/domain"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	bulkWriteSchema = "bulk_write.schema.json"
	bulkReadSchema  = "bulk_read.schema.json"
)

type schemas struct {
	bulkWrite *jsonschema.Schema
	bulkRead  *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	for _, name := range []string{bulkWriteSchema, bulkReadSchema} {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	var sc schemas
	var err error
	if sc.bulkWrite, err = compiler.Compile(bulkWriteSchema); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if sc.bulkRead, err = compiler.Compile(bulkReadSchema); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &sc, nil
}

// decodeBody reads a bulk body capped at the post limit, validates it
// against schema and decodes it into dst.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) error {
	body := http.MaxBytesReader(w, r.Body, h.postLimit)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrBodyTooLarge.Detailf("limit is %d bytes", tooLarge.Limit)
		}
		return domain.ErrBadRequest.WithCause(err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.ErrBadRequest.WithDetails("invalid JSON body").WithCause(err)
	}
	if err := schema.Validate(doc); err != nil {
		return domain.ErrBadRequest.WithDetails(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return domain.ErrBadRequest.WithDetails("invalid JSON body").WithCause(err)
	}
	return nil
}
