package registry

import (
	"fmt"
	"os"

	apperrors "querybot/internal/common/errors"
	"querybot/internal/common/validation"
	"querybot/internal/models"

	"gopkg.in/yaml.v3"
)

// LoadRegistry reads a JSON or YAML report store from path.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a report store. JSON is accepted as a YAML subset,
// which keeps mapping order available through yaml.Node.
func Parse(data []byte) (*Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewTemplateValidationFailedError(err.Error())
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return New(), nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, apperrors.NewTemplateValidationFailedError("report store must be a mapping of report id to template")
	}

	var generic map[string]interface{}
	if err := root.Decode(&generic); err != nil {
		return nil, apperrors.NewTemplateValidationFailedError(err.Error())
	}
	result, err := validation.ValidateDocument(validation.ReportStoreSchema, generic)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, apperrors.NewTemplateValidationFailedError(result.Error())
	}

	templates := make([]*models.ReportTemplate, 0, len(root.Content)/2)
	seen := make(map[string]bool, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		if seen[id] {
			return nil, apperrors.NewTemplateValidationFailedError(fmt.Sprintf("duplicate report id %s", id))
		}
		seen[id] = true

		var tpl models.ReportTemplate
		if err := root.Content[i+1].Decode(&tpl); err != nil {
			return nil, apperrors.NewTemplateValidationFailedError(fmt.Sprintf("%s: %v", id, err))
		}
		tpl.ID = id
		templates = append(templates, &tpl)
	}

	return New(templates...), nil
}
