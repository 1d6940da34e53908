// Package capture records the forms of a document into the shared store.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/rcliao/formsync/internal/dom"
	"github.com/rcliao/formsync/internal/model"
	"github.com/rcliao/formsync/internal/snapshot"
	"github.com/rcliao/formsync/internal/store"
)

// DefaultIgnoreFormIDs are framework forms that never carry user data.
var DefaultIgnoreFormIDs = []string{"elementstodisable", "possedocumentchangeform"}

// Options configures Capture.
type Options struct {
	IgnoreFormIDs []string
	Logger        *slog.Logger
}

// Forms reads the forms of r, dropping ignored forms and any field the
// schema does not resolve, exactly or by partial key. An empty schema keeps
// every field. Fields marked required in the schema are flagged.
func Forms(ctx context.Context, r dom.FormReader, schema model.SchemaMapping, opts Options) ([]model.RawForm, error) {
	if opts.IgnoreFormIDs == nil {
		opts.IgnoreFormIDs = DefaultIgnoreFormIDs
	}
	forms, err := r.Forms(ctx)
	if err != nil {
		return nil, fmt.Errorf("read forms: %w", err)
	}

	out := make([]model.RawForm, 0, len(forms))
	for _, f := range forms {
		if f.FormID != "" && slices.Contains(opts.IgnoreFormIDs, f.FormID) {
			continue
		}
		fields := make([]model.RawField, 0, len(f.Fields))
		for _, field := range f.Fields {
			entry := snapshot.Resolve(schema, field.DataID)
			if len(schema) > 0 && entry == nil {
				continue
			}
			if entry != nil && entry.IsRequired {
				field.Required = true
			}
			fields = append(fields, field)
		}
		f.Fields = fields
		out = append(out, f)
	}
	return out, nil
}

// Capture reads the document and merges its forms into the stored forms
// data by formAction.
func Capture(ctx context.Context, st *store.State, r dom.FormReader, schema model.SchemaMapping, opts Options) ([]model.RawForm, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	forms, err := Forms(ctx, r, schema, opts)
	if err != nil {
		return nil, err
	}
	if err := st.MergeFormsData(ctx, forms); err != nil {
		return nil, fmt.Errorf("store forms: %w", err)
	}
	n := 0
	for _, f := range forms {
		n += len(f.Fields)
	}
	log.Debug("captured forms", "forms", len(forms), "fields", n)
	return forms, nil
}
