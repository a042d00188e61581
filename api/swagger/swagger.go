package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Uni KRS API",
        "description": "Enrollment lifecycle engine for the academic portal",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Subjects", "description": "Subject catalog"},
        {"name": "Offerings", "description": "Per-cohort, per-term subject sections"},
        {"name": "Enrollments", "description": "Student enrollment ledger"},
        {"name": "Lifecycle", "description": "Orchestrated subject lifecycle"}
    ],
    "paths": {
        "/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects",
                "parameters": [
                    {"name": "cohort", "in": "query", "type": "string"},
                    {"name": "class_label", "in": "query", "type": "string"},
                    {"name": "program", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "teacher_id", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Subjects"],
                "summary": "Create subject",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertSubjectRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/{id}": {
            "get": {
                "tags": ["Subjects"],
                "summary": "Get subject",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Subjects"],
                "summary": "Update subject",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertSubjectRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/{id}/status": {
            "patch": {
                "tags": ["Subjects"],
                "summary": "Set subject status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubjectStatusRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/subjects/{id}/activate": {
            "post": {
                "tags": ["Lifecycle"],
                "summary": "Activate a subject and ensure a current-term offering",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/{id}/deactivate": {
            "post": {
                "tags": ["Lifecycle"],
                "summary": "Archive a subject when no active enrollments remain",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Active enrollments present", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/{id}/force-deactivate": {
            "post": {
                "tags": ["Lifecycle"],
                "summary": "Archive a subject, dropping enrollments and closing offerings",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/force-delete": {
            "post": {
                "tags": ["Lifecycle"],
                "summary": "Permanently delete subjects with offerings and enrollments",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ForceDeleteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/subjects/bulk-activate": {
            "post": {
                "tags": ["Lifecycle"],
                "summary": "Activate every subject of a cohort class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkActivateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/offerings": {
            "get": {
                "tags": ["Offerings"],
                "summary": "List offerings",
                "parameters": [
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "cohort", "in": "query", "type": "string"},
                    {"name": "class_label", "in": "query", "type": "string"},
                    {"name": "term", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Offerings"],
                "summary": "Open a new offering",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenOfferingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/offerings/{id}": {
            "get": {
                "tags": ["Offerings"],
                "summary": "Get offering detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/offerings/{id}/status": {
            "patch": {
                "tags": ["Offerings"],
                "summary": "Update offering status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OfferingStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/offerings/{id}/capacity": {
            "get": {
                "tags": ["Offerings"],
                "summary": "Report seat usage",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/offerings/{id}/roster": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments of an offering",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/offerings/{id}/roster/export": {
            "get": {
                "tags": ["Offerings"],
                "summary": "Export the enrollment roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "subject_id", "in": "query", "type": "string"},
                    {"name": "offering_id", "in": "query", "type": "string"},
                    {"name": "term", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student into an offering",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate or full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Withdraw an enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/students/{studentId}/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List a student's enrollments for a term",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "term", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "parameters": [
                    {"name": "cohort", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student detail",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{teacherId}/subjects": {
            "get": {
                "tags": ["Subjects"],
                "summary": "List subjects taught by an instructor",
                "parameters": [
                    {"name": "teacherId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Subject": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "code": {"type": "string"},
                "name": {"type": "string"},
                "credits": {"type": "integer"},
                "cohort": {"type": "string"},
                "class_label": {"type": "string"},
                "program": {"type": "string"},
                "semester": {"type": "integer"},
                "status": {"type": "string"},
                "teacher_ids": {"type": "array", "items": {"type": "string"}},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "UpsertSubjectRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "name": {"type": "string"},
                "credits": {"type": "integer"},
                "cohort": {"type": "string"},
                "class_label": {"type": "string"},
                "program": {"type": "string"},
                "semester": {"type": "integer"},
                "teacher_ids": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["code", "name", "credits", "cohort", "class_label"]
        },
        "OpenOfferingRequest": {
            "type": "object",
            "properties": {
                "subject_id": {"type": "string"},
                "cohort": {"type": "string"},
                "class_label": {"type": "string"},
                "term": {"type": "string"},
                "capacity": {"type": "integer"},
                "day": {"type": "string"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "room": {"type": "string"}
            },
            "required": ["subject_id", "cohort", "class_label", "term"]
        },
        "SubjectStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["ACTIVE", "ARCHIVED"]}
            },
            "required": ["status"]
        },
        "OfferingStatusRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["OPEN", "CLOSED"]}
            },
            "required": ["status"]
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "term": {"type": "string"},
                "offering_id": {"type": "string"}
            },
            "required": ["student_id", "subject_id", "term", "offering_id"]
        },
        "ForceDeleteRequest": {
            "type": "object",
            "properties": {
                "subject_ids": {"type": "array", "items": {"type": "string"}},
                "confirm": {"type": "boolean"}
            },
            "required": ["subject_ids", "confirm"]
        },
        "BulkActivateRequest": {
            "type": "object",
            "properties": {
                "cohort": {"type": "string"},
                "class_label": {"type": "string"}
            },
            "required": ["cohort", "class_label"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
