package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ModuLearn API",
        "description": "Multi-tenant learning platform that converts uploaded PDFs into structured training modules",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Registration, login and token rotation"},
        {"name": "Uploads", "description": "Two-phase signed PDF upload"},
        {"name": "Modules", "description": "Learning module CRUD"},
        {"name": "Sections", "description": "Section editing and reordering"},
        {"name": "Processing", "description": "Conversion status and retries"},
        {"name": "Assignments", "description": "Module-to-learner assignment"},
        {"name": "Progress", "description": "Per-section progress tracking"},
        {"name": "Team", "description": "Organization membership"},
        {"name": "Analytics", "description": "Dashboards, stats and alerts"},
        {"name": "Exports", "description": "CSV and PDF progress reports"},
        {"name": "Health", "description": "Liveness and readiness"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register organization and admin",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Login",
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Expired or replayed token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke refresh token",
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/uploads": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Reserve a signed upload slot",
                "responses": {
                    "201": {"description": "Signed upload URL"},
                    "402": {"description": "Plan limit reached"},
                    "429": {"description": "Rate limited"}
                }
            }
        },
        "/uploads/{token}": {
            "put": {
                "tags": ["Uploads"],
                "summary": "Stream the PDF bytes for a reserved slot",
                "responses": {
                    "200": {"description": "Stored file key"},
                    "403": {"description": "Invalid or expired token"},
                    "413": {"description": "Stream larger than declared size"}
                }
            }
        },
        "/uploads/complete": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Confirm upload and enqueue conversion",
                "responses": {
                    "201": {"description": "Pending module created"}
                }
            }
        },
        "/modules": {
            "get": {
                "tags": ["Modules"],
                "summary": "List modules",
                "responses": {
                    "200": {"description": "Paginated modules"}
                }
            }
        },
        "/modules/{id}": {
            "get": {
                "tags": ["Modules"],
                "summary": "Get module with sections",
                "responses": {
                    "200": {"description": "Module detail"},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Modules"],
                "summary": "Update module metadata",
                "responses": {
                    "200": {"description": "Updated module"}
                }
            },
            "delete": {
                "tags": ["Modules"],
                "summary": "Delete module and stored file",
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Open assignments exist"}
                }
            }
        },
        "/modules/{id}/status": {
            "get": {
                "tags": ["Processing"],
                "summary": "Conversion status",
                "responses": {
                    "200": {"description": "Status with progress"}
                }
            }
        },
        "/modules/{id}/retry": {
            "post": {
                "tags": ["Processing"],
                "summary": "Retry failed conversion",
                "responses": {
                    "202": {"description": "Queued"},
                    "409": {"description": "Module is not failed"}
                }
            }
        },
        "/modules/{id}/sections": {
            "get": {
                "tags": ["Sections"],
                "summary": "List sections in order",
                "responses": {
                    "200": {"description": "Sections"}
                }
            }
        },
        "/modules/{id}/sections/reorder": {
            "put": {
                "tags": ["Sections"],
                "summary": "Apply a full permutation of section IDs",
                "responses": {
                    "200": {"description": "Reordered sections"},
                    "400": {"description": "Not a permutation"}
                }
            }
        },
        "/modules/{id}/sections/{sectionId}": {
            "patch": {
                "tags": ["Sections"],
                "summary": "Update section fields",
                "responses": {
                    "200": {"description": "Updated section"}
                }
            }
        },
        "/modules/{id}/assignments": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Assign module to learners",
                "responses": {
                    "201": {"description": "Created assignments with skip count"}
                }
            },
            "get": {
                "tags": ["Assignments"],
                "summary": "List module assignments",
                "responses": {
                    "200": {"description": "Assignment details"}
                }
            }
        },
        "/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List my assignments",
                "responses": {
                    "200": {"description": "Assignments for the caller"}
                }
            }
        },
        "/assignments/{id}": {
            "delete": {
                "tags": ["Assignments"],
                "summary": "Unassign a learner",
                "responses": {
                    "204": {"description": "Removed"}
                }
            }
        },
        "/modules/{id}/sections/{sectionId}/progress": {
            "put": {
                "tags": ["Progress"],
                "summary": "Record time spent and completion",
                "responses": {
                    "200": {"description": "Progress summary"}
                }
            }
        },
        "/modules/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "My progress summary for a module",
                "responses": {
                    "200": {"description": "Summary"}
                }
            }
        },
        "/modules/{id}/progress/detail": {
            "get": {
                "tags": ["Progress"],
                "summary": "Per-learner progress detail",
                "responses": {
                    "200": {"description": "Detail rows"}
                }
            }
        },
        "/modules/{id}/export": {
            "post": {
                "tags": ["Exports"],
                "summary": "Generate CSV or PDF progress report",
                "responses": {
                    "201": {"description": "Signed download URL"}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a generated report",
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        },
        "/team": {
            "get": {
                "tags": ["Team"],
                "summary": "List members",
                "responses": {
                    "200": {"description": "Paginated members"}
                }
            }
        },
        "/team/invite": {
            "post": {
                "tags": ["Team"],
                "summary": "Invite a member",
                "responses": {
                    "201": {"description": "Created member"},
                    "402": {"description": "Member ceiling reached"},
                    "429": {"description": "Invite rate limited"}
                }
            }
        },
        "/team/{id}": {
            "patch": {
                "tags": ["Team"],
                "summary": "Change role or active flag",
                "responses": {
                    "200": {"description": "Updated member"},
                    "409": {"description": "Would remove the last admin"}
                }
            },
            "delete": {
                "tags": ["Team"],
                "summary": "Deactivate a member",
                "responses": {
                    "204": {"description": "Deactivated"}
                }
            }
        },
        "/analytics/dashboard": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Organization dashboard",
                "responses": {
                    "200": {"description": "Aggregates"}
                }
            }
        },
        "/analytics/stats": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Daily stats over a date range",
                "responses": {
                    "200": {"description": "Daily rows"}
                }
            }
        },
        "/analytics/system": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Runtime metrics snapshot",
                "responses": {
                    "200": {"description": "System metrics"}
                }
            }
        },
        "/analytics/health": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Dependency health detail",
                "responses": {
                    "200": {"description": "Per-component sweep"}
                }
            }
        },
        "/analytics/alerts": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Recent operational alerts",
                "responses": {
                    "200": {"description": "Bounded alert log"}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/readyz": {
            "get": {
                "tags": ["Health"],
                "summary": "Readiness",
                "responses": {
                    "200": {"description": "Healthy or degraded"},
                    "503": {"description": "Unhealthy"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"}
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
