// Package docs registers the OpenAPI document served at /openapi.json.
// Regenerate with: swag init -g cmd/shravan-server/main.go
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
                "produces": ["application/json"],
                "tags": ["Assist"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/assist.HealthResponse"}
                    }
                }
            }
        },
        "/query": {
            "post": {
                "description": "Combines the camera frame, the spoken or typed question and the server location into one guidance reply.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Assist"],
                "summary": "Ask for guidance",
                "parameters": [
                    {
                        "description": "text, audio and image (base64 or data URL); at least one is required",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/assist.QueryRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/assist.QueryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        },
        "/transcribe": {
            "post": {
                "description": "Accepts a multipart upload in field \"audio\" or a JSON body {\"audio\": \"<base64>\"}.",
                "consumes": ["multipart/form-data", "application/json"],
                "produces": ["application/json"],
                "tags": ["Assist"],
                "summary": "Transcribe audio",
                "parameters": [
                    {"type": "file", "description": "audio recording", "name": "audio", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/assist.TranscribeResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/httptransport.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "assist.BoundingBox": {
            "type": "object",
            "properties": {
                "x1": {"type": "number"},
                "x2": {"type": "number"},
                "y1": {"type": "number"},
                "y2": {"type": "number"}
            }
        },
        "assist.DetectedObject": {
            "type": "object",
            "properties": {
                "confidence": {"type": "number", "example": 0.92},
                "object": {"type": "string", "example": "chair"},
                "position": {"$ref": "#/definitions/assist.BoundingBox"}
            }
        },
        "assist.HealthResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Server is running"},
                "status": {"type": "string", "example": "ok"}
            }
        },
        "assist.QueryRequest": {
            "type": "object",
            "properties": {
                "audio": {"type": "string"},
                "image": {"type": "string"},
                "text": {"type": "string", "example": "What's in front of me?"}
            }
        },
        "assist.QueryResponse": {
            "type": "object",
            "properties": {
                "detected_objects": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/assist.DetectedObject"}
                },
                "location": {"type": "string", "example": "You are in Pune, Maharashtra, India"},
                "object": {"type": "string", "example": "chair"},
                "reply": {"type": "string"},
                "scene_status": {"type": "string", "example": "detected"},
                "speech_recognized": {"type": "string"}
            }
        },
        "assist.TranscribeResponse": {
            "type": "object",
            "properties": {
                "text": {"type": "string"}
            }
        },
        "httptransport.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
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
	Title:            "Shravan API",
	Description:      "Guidance for visually impaired users from a camera frame, a spoken or typed question and the server location.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
