// Package docs registers the API's swagger document with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Model identity and the state of optional backends",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/features": {
            "get": {
                "description": "Feature names in model order with their display labels",
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Required features",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/model": {
            "get": {
                "description": "Version, bias and global coefficient importance",
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Model summary",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/predict": {
            "post": {
                "description": "Body maps every required feature to a number",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Score a feature vector",
                "parameters": [
                    {"type": "boolean", "description": "include contributions and linear score", "name": "detail", "in": "query"},
                    {"description": "feature vector", "name": "features", "in": "body", "required": true,
                     "schema": {"type": "object", "additionalProperties": {"type": "number"}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scoring.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/predict/profile": {
            "post": {
                "description": "Derives the feature vector from form input, then scores it",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Score a startup profile",
                "parameters": [
                    {"type": "boolean", "description": "include contributions and linear score", "name": "detail", "in": "query"},
                    {"description": "startup profile", "name": "profile", "in": "body", "required": true,
                     "schema": {"$ref": "#/definitions/intake.Profile"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scoring.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/predictions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "Recent predictions",
                "parameters": [{"type": "integer", "description": "max records (default 20, max 500)", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/predictions/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "Audited predictions per risk level",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/predictions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "Audited prediction",
                "parameters": [{"type": "string", "description": "prediction id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/database.PredictionRecord"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/privacy/policy": {
            "get": {
                "description": "What the audit log stores and how long it is kept",
                "produces": ["application/json"],
                "tags": ["audit"],
                "summary": "Data retention policy",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        }
    },
    "definitions": {
        "scoring.Contribution": {
            "type": "object",
            "properties": {
                "feature": {"type": "string"},
                "value": {"type": "number"},
                "weight": {"type": "number"},
                "contribution": {"type": "number"}
            }
        },
        "scoring.Response": {
            "type": "object",
            "properties": {
                "failure_probability": {"type": "number"},
                "risk_level": {"type": "string", "enum": ["Low Risk", "Medium Risk", "High Risk"]},
                "top_risk_factors": {"type": "array", "items": {"type": "string"}},
                "positive_signals": {"type": "array", "items": {"type": "string"}},
                "linear_score": {"type": "number"},
                "contributions": {"type": "array", "items": {"$ref": "#/definitions/scoring.Contribution"}}
            }
        },
        "intake.Profile": {
            "type": "object",
            "properties": {
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "age_first_funding_year": {"type": "number"},
                "age_last_funding_year": {"type": "number"},
                "age_first_milestone_year": {"type": "number"},
                "age_last_milestone_year": {"type": "number"},
                "relationships": {"type": "number"},
                "funding_rounds": {"type": "number"},
                "funding_total_usd": {"type": "number"},
                "milestones": {"type": "number"},
                "avg_participants": {"type": "number"},
                "state_code": {"type": "string"},
                "category": {"type": "string"},
                "funding_types": {"type": "array", "items": {"type": "string"}},
                "is_top500": {"type": "boolean"}
            }
        },
        "database.PredictionRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "created_at": {"type": "string"},
                "model_version": {"type": "string"},
                "source": {"type": "string"},
                "failure_probability": {"type": "number"},
                "risk_level": {"type": "string"},
                "top_risk_factors": {"type": "array", "items": {"type": "string"}},
                "positive_signals": {"type": "array", "items": {"type": "string"}},
                "features": {"type": "object", "additionalProperties": {"type": "number"}}
            }
        },
        "errors.Response": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "category": {"type": "string"},
                "timestamp": {"type": "string"},
                "request_id": {"type": "string"},
                "missing_features": {"type": "array", "items": {"type": "string"}},
                "extra_features": {"type": "array", "items": {"type": "string"}},
                "details": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "RunwayAI API",
	Description:      "Startup failure risk scoring with per-feature attributions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
