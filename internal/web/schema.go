// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package web

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/authkv/authkv/internal/auth"
)

const credentialsSchemaID = "https://authkv.dev/schemas/credentials.schema.json"

// CredentialsSchema returns the JSON Schema for register and login bodies.
func CredentialsSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&auth.Credentials{})
	schema.ID = credentialsSchemaID
	schema.Title = "AuthKV Credentials"
	schema.Description = "Body of POST /register and POST /login"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_FAILED").With("operation", "marshal schema").Wrap(err)
	}
	return data, nil
}

var compileCredentialsSchema = sync.OnceValues(func() (*jschema.Schema, error) {
	data, err := CredentialsSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_FAILED").With("operation", "parse schema").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(credentialsSchemaID, doc); err != nil {
		return nil, oops.Code("SCHEMA_FAILED").With("operation", "add schema resource").Wrap(err)
	}
	sch, err := c.Compile(credentialsSchemaID)
	if err != nil {
		return nil, oops.Code("SCHEMA_FAILED").With("operation", "compile schema").Wrap(err)
	}
	return sch, nil
})

// decodeCredentials validates body against the credentials schema and reads
// the fields from the validated document, so only the exact keys the schema
// checked are used. Malformed JSON and schema violations return CodeBadRequest.
func decodeCredentials(body []byte) (auth.Credentials, error) {
	var creds auth.Credentials

	sch, err := compileCredentialsSchema()
	if err != nil {
		return creds, err
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return creds, oops.Code(CodeBadRequest).With("reason", "malformed json").Wrap(err)
	}
	if err := sch.Validate(doc); err != nil {
		return creds, oops.Code(CodeBadRequest).With("reason", "schema").Wrap(err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return creds, oops.Code(CodeBadRequest).With("reason", "decode").Errorf("body is not an object")
	}
	if creds.Username, ok = obj["username"].(string); !ok {
		return creds, oops.Code(CodeBadRequest).With("reason", "decode").Errorf("username is not a string")
	}
	if creds.Password, ok = obj["password"].(string); !ok {
		return creds, oops.Code(CodeBadRequest).With("reason", "decode").Errorf("password is not a string")
	}
	return creds, nil
}
