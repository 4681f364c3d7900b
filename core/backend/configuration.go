// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	Resources []resourceConfiguration `json:"resources"`
	CORS      bool                    `json:"cors"`
}

// resourceConfiguration describes one exposed catalogue resource
type resourceConfiguration struct {
	Resource        string `json:"resource"`
	Description     string `json:"description"`
	WithAttachments bool   `json:"with_attachments"`
}

const configurationSchema = `{
  "type": "object",
  "properties": {
    "resources": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "resource": {
            "type": "string",
            "enum": ["device", "platform", "configuration"]
          },
          "description": { "type": "string" },
          "with_attachments": { "type": "boolean" }
        },
        "required": ["resource"],
        "additionalProperties": false
      }
    },
    "cors": { "type": "boolean" }
  },
  "required": ["resources"],
  "additionalProperties": false
}`

func parseConfiguration(data string) (*Configuration, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configurationSchema),
		gojsonschema.NewStringLoader(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %s", err)
	}
	if !result.Valid() {
		message := "invalid backend configuration:"
		for _, desc := range result.Errors() {
			message += fmt.Sprintf("\n- %s", desc)
		}
		return nil, fmt.Errorf("%s", message)
	}

	var config Configuration
	err = json.Unmarshal([]byte(data), &config)
	if err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %s", err)
	}
	return &config, nil
}
