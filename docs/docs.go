// Package docs registers the OpenAPI description of the HTTP sidecar with
// swag so that gin-swagger can serve it under /swagger/.
//
// Regenerate with: swag init -g cmd/filegate/main.go -o docs
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
        "/verify/callback": {
            "get": {
                "description": "Called by the verification page once the user finished it. Admits the user for the admission window and credits the referrer on the user's first admission.",
                "produces": ["application/json"],
                "tags": ["Verification"],
                "summary": "Complete a verification",
                "operationId": "verifyCallback",
                "parameters": [
                    {"type": "integer", "example": 42, "description": "Telegram user id", "name": "uid", "in": "query", "required": true},
                    {"type": "string", "example": "7", "description": "Referral token from /start", "name": "ref", "in": "query"},
                    {"type": "string", "description": "Callback secret", "name": "token", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.VerifyResponse"}},
                    "400": {"description": "Invalid user id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Invalid token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}/admission": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Reports whether the user currently holds an unexpired admission. Unknown users are reported as not admitted.",
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Get admission state",
                "operationId": "getAdmission",
                "parameters": [
                    {"type": "integer", "example": 42, "description": "Telegram user id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AdmissionResponse"}},
                    "400": {"description": "Invalid user id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or invalid API key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}/balance": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the balance accumulated from referral credits. Unknown users have a zero balance.",
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Get referral balance",
                "operationId": "getBalance",
                "parameters": [
                    {"type": "integer", "example": 7, "description": "Telegram user id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.BalanceResponse"}},
                    "400": {"description": "Invalid user id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or invalid API key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}/files": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the entries stored by the user, oldest first.",
                "produces": ["application/json"],
                "tags": ["Files"],
                "summary": "List a user's files (paginated)",
                "operationId": "listFiles",
                "parameters": [
                    {"type": "integer", "example": 42, "description": "Telegram user id", "name": "id", "in": "path", "required": true},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"},
                    {"type": "string", "description": "ETag from a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListFilesResponse"}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "400": {"description": "Invalid user id", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or invalid API key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/files/{id}": {
            "delete": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Removes the entry on behalf of the requesting user and retracts the channel copy. Only the uploader may delete an entry.",
                "produces": ["application/json"],
                "tags": ["Files"],
                "summary": "Delete a stored file",
                "operationId": "deleteFile",
                "parameters": [
                    {"type": "integer", "example": 42, "description": "Requesting Telegram user id", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "example": "0a1b2c3d", "description": "File id (8 hex characters)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content", "schema": {"type": "string"}},
                    "400": {"description": "Missing requester", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or invalid API key", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "File belongs to another user", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "File not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.AdmissionResponse": {
            "type": "object",
            "properties": {
                "admitted": {"type": "boolean", "example": true},
                "expires_at": {"type": "string", "example": "2026-10-18T12:00:00Z"},
                "user_id": {"type": "integer", "example": 42},
                "verified": {"type": "boolean", "example": true}
            }
        },
        "handlers.BalanceResponse": {
            "type": "object",
            "properties": {
                "balance": {"type": "number", "example": 0.05},
                "user_id": {"type": "integer", "example": 7}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "file_not_found"},
                "message": {"type": "string", "example": "file not found"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.FileResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string", "example": "2026-10-17T09:30:00Z"},
                "file_name": {"type": "string", "example": "report.pdf"},
                "id": {"type": "string", "example": "0a1b2c3d"},
                "kind": {"type": "string", "example": "document"},
                "link": {"type": "string", "example": "https://t.me/filestoragebot?start=0a1b2c3d"},
                "text": {"type": "string", "example": "meeting notes"}
            }
        },
        "handlers.ListFilesResponse": {
            "type": "object",
            "properties": {
                "files": {"type": "array", "items": {"$ref": "#/definitions/handlers.FileResponse"}},
                "owner_id": {"type": "integer", "example": 42},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "has_next": {"type": "boolean"},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
            }
        },
        "handlers.VerifyResponse": {
            "type": "object",
            "properties": {
                "admitted": {"type": "boolean", "example": true},
                "expires_at": {"type": "string", "example": "2026-10-18T12:00:00Z"},
                "user_id": {"type": "integer", "example": 42}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "filegate-bot API",
	Description:      "Verification callback and operator API of the Telegram file relay bot.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
