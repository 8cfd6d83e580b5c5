package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Entitlement Ledger API",
        "description": "Entitlement grants, holds, consumption ledger and transactional event outbox",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Balances", "description": "Derived per-service balances"},
        {"name": "Grants", "description": "Immutable entitlement grants"},
        {"name": "Ledger", "description": "Append-only consumption ledger"},
        {"name": "Holds", "description": "Soft reservations pending a booking outcome"},
        {"name": "Events", "description": "Upstream domain event ingress"},
        {"name": "Outbox", "description": "Operational outbox controls"},
        {"name": "Statements", "description": "Asynchronous ledger statement exports"}
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/students/{studentId}/balance": {
            "get": {
                "tags": ["Balances"],
                "summary": "Current balance for a student",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "service_type", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/grants": {
            "get": {
                "tags": ["Grants"],
                "summary": "List a student's grants in attribution order",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "service_type", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grants": {
            "post": {
                "tags": ["Grants"],
                "summary": "Record a new entitlement grant",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGrantRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/ledger": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Ledger history for a student",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "service_type", "in": "query", "type": "string"},
                    {"name": "operation_type", "in": "query", "type": "string"},
                    {"name": "booking_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/{id}": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Single ledger entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/consumptions": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Record a consumption",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConsumptionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Insufficient balance", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/refunds": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Record a refund for a booking",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefundRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Refund exceeds consumed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ledger/adjustments": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Record a manual adjustment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdjustmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/holds": {
            "post": {
                "tags": ["Holds"],
                "summary": "Open a soft reservation against available balance",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateHoldRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Insufficient balance", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/holds/{id}": {
            "get": {
                "tags": ["Holds"],
                "summary": "Single hold",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/holds/{id}/booking": {
            "patch": {
                "tags": ["Holds"],
                "summary": "Late-bind the downstream booking id",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"booking_id": {"type": "string"}}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/holds/{id}/cancel": {
            "post": {
                "tags": ["Holds"],
                "summary": "Cancel an active hold",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"type": "object", "properties": {"reason": {"type": "string"}}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events": {
            "post": {
                "tags": ["Events"],
                "summary": "Ingest an upstream domain event",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InboundEvent"}}
                ],
                "responses": {
                    "200": {"description": "Processed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ops/outbox/process": {
            "post": {
                "tags": ["Outbox"],
                "summary": "Run one outbox publish cycle now",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ops/outbox/retry-failed": {
            "post": {
                "tags": ["Outbox"],
                "summary": "Requeue recently failed outbox events",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ops/outbox/cleanup": {
            "post": {
                "tags": ["Outbox"],
                "summary": "Delete published outbox events past retention",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/statements": {
            "post": {
                "tags": ["Statements"],
                "summary": "Queue a ledger statement export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStatementRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/statements/{id}": {
            "get": {
                "tags": ["Statements"],
                "summary": "Statement job status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/statements/download": {
            "get": {
                "tags": ["Statements"],
                "summary": "Download a finished statement with a signed token",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateGrantRequest": {
            "type": "object",
            "required": ["student_id", "service_type", "source", "quantity", "created_by"],
            "properties": {
                "student_id": {"type": "string"},
                "service_type": {"type": "string"},
                "source": {"type": "string", "enum": ["product", "addon", "promotion", "compensation"]},
                "quantity": {"type": "integer", "minimum": 1},
                "origin_items": {"type": "array", "items": {"type": "object"}},
                "created_by": {"type": "string"}
            }
        },
        "ConsumptionRequest": {
            "type": "object",
            "required": ["student_id", "service_type", "quantity", "created_by"],
            "properties": {
                "student_id": {"type": "string"},
                "service_type": {"type": "string"},
                "quantity": {"type": "integer", "minimum": 1},
                "related_booking_id": {"type": "string"},
                "related_hold_id": {"type": "string"},
                "booking_source": {"type": "string"},
                "created_by": {"type": "string"}
            }
        },
        "RefundRequest": {
            "type": "object",
            "required": ["student_id", "service_type", "quantity", "related_booking_id", "created_by"],
            "properties": {
                "student_id": {"type": "string"},
                "service_type": {"type": "string"},
                "quantity": {"type": "integer", "minimum": 1},
                "related_booking_id": {"type": "string"},
                "booking_source": {"type": "string"},
                "reason": {"type": "string"},
                "created_by": {"type": "string"}
            }
        },
        "AdjustmentRequest": {
            "type": "object",
            "required": ["student_id", "service_type", "quantity_change", "reason", "created_by"],
            "properties": {
                "student_id": {"type": "string"},
                "service_type": {"type": "string"},
                "quantity_change": {"type": "integer"},
                "operation_type": {"type": "string", "enum": ["adjustment", "initial", "expiration"]},
                "reason": {"type": "string"},
                "related_entry_id": {"type": "string"},
                "created_by": {"type": "string"}
            }
        },
        "CreateHoldRequest": {
            "type": "object",
            "required": ["student_id", "service_type"],
            "properties": {
                "student_id": {"type": "string"},
                "service_type": {"type": "string"},
                "quantity": {"type": "integer", "minimum": 1, "default": 1},
                "related_booking_id": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "CreateStatementRequest": {
            "type": "object",
            "required": ["format", "created_by"],
            "properties": {
                "service_type": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "created_by": {"type": "string"}
            }
        },
        "InboundEvent": {
            "type": "object",
            "required": ["event_type", "payload"],
            "properties": {
                "event_type": {"type": "string"},
                "payload": {"type": "object"}
            }
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
                "status": {"type": "integer"}
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
