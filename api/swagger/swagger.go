package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LMS Certificate API",
        "description": "Course completion tracking and verifiable certificate issuance",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Courses", "description": "Catalog configuration"},
        {"name": "Progress", "description": "Per-lecture watch progress and completion"},
        {"name": "Certificates", "description": "Approval, issuance and registry export"},
        {"name": "Batches", "description": "Bulk certificate rendering"},
        {"name": "Verification", "description": "Public certificate verification"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/verify-certificate/{certificateId}": {
            "get": {
                "tags": ["Verification"],
                "summary": "Publicly verify a certificate by id",
                "parameters": [
                    {"name": "certificateId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/VerificationResult"}},
                    "404": {"description": "Unknown certificate", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the current session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/courses/{courseId}/students/{studentId}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Progress record for an enrollment",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "studentId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No progress recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Progress"],
                "summary": "Reset all progress for an enrollment",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "studentId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{courseId}/students/{studentId}/lectures/{lectureId}/viewed": {
            "post": {
                "tags": ["Progress"],
                "summary": "Mark a lecture as watched",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "studentId", "in": "path", "type": "string", "required": true},
                    {"name": "lectureId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{courseId}/students/{studentId}/lectures/{lectureId}/progress": {
            "post": {
                "tags": ["Progress"],
                "summary": "Record playback percentage for a lecture",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "studentId", "in": "path", "type": "string", "required": true},
                    {"name": "lectureId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PlaybackRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{courseId}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Course with its curriculum",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown course", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{courseId}/threshold": {
            "patch": {
                "tags": ["Courses"],
                "summary": "Update a course's completion threshold",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ThresholdRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Out of range", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/certificates/approve": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Enable certificate issuance for an enrollment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApproveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/certificates/revoke": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Revoke a certificate approval",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RevokeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{courseId}/students/{studentId}/certificate": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Certificate eligibility and issuance state",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "studentId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{courseId}/students/{studentId}/certificate/download": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Issue (if needed) and download the certificate PDF",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true},
                    {"name": "studentId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "PDF document"},
                    "403": {"description": "Not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/me/certificates": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Certificates of the authenticated student",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/courses/{courseId}/certificates/export": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Export the certificate registry of a course as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "CSV document"}
                }
            }
        },
        "/api/v1/courses/{courseId}/certificates/batches": {
            "post": {
                "tags": ["Batches"],
                "summary": "Queue bulk certificate rendering for a course",
                "parameters": [
                    {"name": "courseId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No active approvals", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/certificates/batches/{id}": {
            "get": {
                "tags": ["Batches"],
                "summary": "Batch state and progress",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/certificates/batches/download": {
            "get": {
                "tags": ["Batches"],
                "summary": "Download a finished batch archive",
                "produces": ["application/zip"],
                "parameters": [
                    {"name": "token", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "ZIP archive"},
                    "401": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "ThresholdRequest": {
            "type": "object",
            "properties": {
                "threshold": {"type": "integer"}
            },
            "required": ["threshold"]
        },
        "PlaybackRequest": {
            "type": "object",
            "properties": {
                "percentage": {"type": "integer"}
            },
            "required": ["percentage"]
        },
        "ApproveRequest": {
            "type": "object",
            "properties": {
                "course_id": {"type": "string"},
                "student_id": {"type": "string"},
                "grade": {"type": "string"},
                "notes": {"type": "string"}
            },
            "required": ["course_id", "student_id", "grade"]
        },
        "RevokeRequest": {
            "type": "object",
            "properties": {
                "course_id": {"type": "string"},
                "student_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["course_id", "student_id"]
        },
        "VerificationResult": {
            "type": "object",
            "properties": {
                "certificateId": {"type": "string"},
                "studentId": {"type": "string"},
                "studentName": {"type": "string"},
                "studentFatherName": {"type": "string"},
                "courseTitle": {"type": "string"},
                "grade": {"type": "string"},
                "issueDate": {"type": "string"},
                "issuedBy": {"type": "string"},
                "revoked": {"type": "boolean"},
                "verified": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"type": "object"},
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
