// Package docs holds the swagger document served under /swagger. It mirrors
// the annotations in internal/server; regenerate with swag init after
// changing them.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "sitedrop maintainers",
            "url": "https://github.com/raysh454/sitedrop"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}}
                }
            }
        },
        "/upload": {
            "post": {
                "description": "Uploads .html, .css and .js files, creates a repository for them and enables Pages. Blocks until the site is deployed.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["deploy"],
                "summary": "Deploy a static site",
                "parameters": [
                    {"type": "string", "description": "Project name", "name": "projectName", "in": "formData", "required": true},
                    {"type": "string", "description": "Contact email", "name": "email", "in": "formData", "required": true},
                    {"type": "file", "description": "Site files", "name": "files", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.UploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/projects": {
            "get": {
                "produces": ["application/json"],
                "tags": ["deploy"],
                "summary": "List deployed projects",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/registry.Record"}}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/app.Job"}}}
                }
            }
        },
        "/jobs/upload": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Deploy a static site in the background",
                "parameters": [
                    {"type": "string", "description": "Project name", "name": "projectName", "in": "formData", "required": true},
                    {"type": "string", "description": "Contact email", "name": "email", "in": "formData", "required": true},
                    {"type": "file", "description": "Site files", "name": "files", "in": "formData", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get a job",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["jobs"],
                "summary": "Cancel a job at its next stage boundary",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string", "example": "deploy"},
                "project": {"type": "string"},
                "session_id": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
                "stage": {"type": "string", "enum": ["validate", "provision", "publish", "activate", "record"]},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "result": {"type": "object"}
            }
        },
        "registry.Record": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "sessionId": {"type": "string"},
                "projectName": {"type": "string"},
                "email": {"type": "string"},
                "repositoryName": {"type": "string"},
                "hostingEndpoint": {"type": "string"},
                "repositoryUrl": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "file type not allowed: logo.png"}
            }
        },
        "server.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "OK"},
                "message": {"type": "string", "example": "Server is running"}
            }
        },
        "server.UploadResponse": {
            "type": "object",
            "properties": {
                "hostingEndpoint": {"type": "string", "example": "https://octo.github.io/my-site-1718000000000/"},
                "repositoryUrl": {"type": "string", "example": "https://github.com/octo/my-site-1718000000000"},
                "repositoryName": {"type": "string", "example": "my-site-1718000000000"},
                "message": {"type": "string"},
                "warnings": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "file": {"type": "string"},
                            "ref": {"type": "string"},
                            "message": {"type": "string"}
                        }
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "sitedrop API",
	Description:      "Upload a static site and get it deployed to GitHub Pages.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
