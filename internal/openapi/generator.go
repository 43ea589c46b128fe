package openapi

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// BasePath is the prefix every admin route is mounted under.
const BasePath = "/api/v1/admin"

// errorDescriptions are the error statuses the admin API can return.
var errorDescriptions = map[string]string{
	"400": "Bad request",
	"401": "Unauthorized",
	"422": "Validation failed",
	"429": "Too many requests",
	"500": "Internal server error",
}

// Generate builds the OpenAPI 3.1 description of the admin authentication
// API. baseURL is advertised as the only server; version fills info.version.
func Generate(baseURL, version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Pressroom Admin API",
			Description: "Admin account management and session authentication for the Pressroom CMS.",
			Version:     version,
		},
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{
		"ErrorResponse":      errorResponseSchema(),
		"Admin":              adminSchema(),
		"CreateAdminRequest": createAdminRequestSchema(),
		"LoginRequest":       loginRequestSchema(),
	}
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		},
		"cookieAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type: "apiKey",
				In:   "cookie",
				Name: "token",
			},
		},
	}
	doc.Components = &components
	doc.Paths = openapi3.NewPaths()

	adminRef := openapi3.NewSchemaRef("#/components/schemas/Admin", nil)

	doc.Paths.Set(BasePath, &openapi3.PathItem{
		Get: secured(&openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "List admins",
			OperationID: "list_admins",
			Responses: newResponses("200", "All admin accounts", objectSchema(openapi3.Schemas{
				"resource": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: adminRef}},
				"meta":     metaSchema(),
			}), "401"),
		}),
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Create an admin account",
			Description: "Usernames are 3-50 characters of letters, digits, '_', '.' and '-'. Passwords are 6-72 bytes.",
			OperationID: "create_admin",
			RequestBody: jsonBody("New account", "#/components/schemas/CreateAdminRequest"),
			Responses: newResponses("201", "Account created", objectSchema(openapi3.Schemas{
				"message": stringSchema(""),
				"admin":   adminRef,
			}), "400", "422", "429"),
		},
	})

	doc.Paths.Set(BasePath+"/login", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Log in",
			Description: "Supply exactly one of email or username. The token is returned in the body and set as the token cookie.",
			OperationID: "login",
			RequestBody: jsonBody("Credentials", "#/components/schemas/LoginRequest"),
			Responses: newResponses("201", "Session token issued", objectSchema(openapi3.Schemas{
				"token":      stringSchema(""),
				"token_type": stringSchema(""),
				"expires_at": stringSchema("date-time"),
				"admin":      adminRef,
			}), "400", "401", "429"),
		},
	})

	doc.Paths.Set(BasePath+"/logout", &openapi3.PathItem{
		Post: secured(&openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Log out",
			Description: "Revokes the presented token and clears the cookie. Repeating the call is not an error.",
			OperationID: "logout",
			Responses: newResponses("201", "Token revoked", objectSchema(openapi3.Schemas{
				"message": stringSchema(""),
			}), "401"),
		}),
	})

	doc.Paths.Set(BasePath+"/profile", &openapi3.PathItem{
		Get: secured(&openapi3.Operation{
			Tags:        []string{"auth"},
			Summary:     "Current admin",
			OperationID: "get_profile",
			Responses: newResponses("200", "The authenticated admin", objectSchema(openapi3.Schemas{
				"admin": adminRef,
			}), "401"),
		}),
	})

	return doc
}

// secured marks op as accepting either the bearer header or the cookie.
func secured(op *openapi3.Operation) *openapi3.Operation {
	op.Security = &openapi3.SecurityRequirements{
		{"bearerAuth": {}},
		{"cookieAuth": {}},
	}
	return op
}

// newResponses builds a Responses map with a success response and the listed
// error responses, all sharing the ErrorResponse schema.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	for _, code := range append(errorCodes, "500") {
		desc, ok := errorDescriptions[code]
		if !ok {
			desc = http.StatusText(http.StatusInternalServerError)
		}
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}

	return responses
}

func jsonBody(description, ref string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef(ref, nil)),
		},
	}
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}

func stringSchema(format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: format}}
}

func errorResponseSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"error": objectSchema(openapi3.Schemas{
			"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
			"message": stringSchema(""),
			"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
		}, "code", "message"),
	}, "error")
}

func adminSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"id":         stringSchema("uuid"),
		"username":   stringSchema(""),
		"email":      stringSchema("email"),
		"created_at": stringSchema("date-time"),
	}, "id", "username", "email", "created_at")
}

func createAdminRequestSchema() *openapi3.SchemaRef {
	username := stringSchema("")
	username.Value.MinLength = 3
	maxLen := uint64(50)
	username.Value.MaxLength = &maxLen
	username.Value.Pattern = `^[A-Za-z0-9_.-]+$`

	password := stringSchema("password")
	password.Value.MinLength = 6

	return objectSchema(openapi3.Schemas{
		"username": username,
		"email":    stringSchema("email"),
		"password": password,
	}, "username", "email", "password")
}

func loginRequestSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"email":    stringSchema("email"),
		"username": stringSchema(""),
		"password": stringSchema("password"),
	}, "password")
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return objectSchema(openapi3.Schemas{
		"count": &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:        &openapi3.Types{"integer"},
				Format:      "int64",
				Description: "Number of records returned.",
			},
		},
	})
}
