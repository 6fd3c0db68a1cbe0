// Package docs is generated by swag from the handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Patient Flow Backend",
        "description": "Patient queue, wait-time estimation and load-balancing advisories for outpatient clinics",
        "version": "1.0"
    },
    "basePath": "/",
    "paths": {
        "/healthz": {
            "get": {
                "tags": [
                    "system"
                ],
                "summary": "Health check",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "503": {
                        "description": "Database unavailable"
                    }
                }
            }
        },
        "/api/doctors": {
            "get": {
                "tags": [
                    "doctors"
                ],
                "summary": "List doctors",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/doctors/{id}/start": {
            "post": {
                "tags": [
                    "doctors"
                ],
                "summary": "Start consultation",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Doctor ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Doctor not found"
                    }
                }
            }
        },
        "/api/doctors/{id}/complete": {
            "post": {
                "tags": [
                    "doctors"
                ],
                "summary": "Complete consultation",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Doctor ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Doctor not found"
                    },
                    "409": {
                        "description": "No consultation in progress"
                    }
                }
            }
        },
        "/api/doctors/{id}/refresh": {
            "post": {
                "tags": [
                    "doctors"
                ],
                "summary": "Refresh predicted waits",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Doctor ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Doctor not found"
                    }
                }
            }
        },
        "/api/patients": {
            "get": {
                "tags": [
                    "patients"
                ],
                "summary": "List patients",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "waiting | in_consultation | completed",
                        "name": "status",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "post": {
                "tags": [
                    "patients"
                ],
                "summary": "Register patient",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Registration",
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.RegisterPatientRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created"
                    },
                    "400": {
                        "description": "Validation failed"
                    },
                    "404": {
                        "description": "Doctor not found"
                    }
                }
            }
        },
        "/api/patients/{id}": {
            "get": {
                "tags": [
                    "patients"
                ],
                "summary": "Patient details",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Patient ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Patient not found"
                    }
                }
            }
        },
        "/api/snapshot": {
            "get": {
                "tags": [
                    "dashboard"
                ],
                "summary": "Queue snapshot",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/recommendations": {
            "get": {
                "tags": [
                    "dashboard"
                ],
                "summary": "Recommendations",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "number",
                        "description": "Overload threshold in minutes",
                        "name": "peak_threshold",
                        "in": "query"
                    },
                    {
                        "type": "number",
                        "description": "Waiting/total ratio for the peak advisory",
                        "name": "peak_ratio",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Validation failed"
                    }
                }
            }
        },
        "/api/estimate": {
            "get": {
                "tags": [
                    "estimator"
                ],
                "summary": "Estimate wait",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Doctor ID",
                        "name": "doctor_id",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "description": "Queue length",
                        "name": "queue_length",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Hour of day",
                        "name": "hour",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Day of week, Monday = 0",
                        "name": "day_of_week",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Validation failed"
                    },
                    "404": {
                        "description": "Doctor not found"
                    }
                }
            }
        },
        "/api/predictions": {
            "get": {
                "tags": [
                    "estimator"
                ],
                "summary": "Prediction audit trail",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/api/debug/assignment": {
            "get": {
                "tags": [
                    "debug"
                ],
                "summary": "Debug assignment",
                "description": "Ranks every doctor the way automatic assignment would",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "RFC3339 appointment time, defaults to now",
                        "name": "appointment_time",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Validation failed"
                    }
                }
            }
        }
    },
    "definitions": {
        "handlers.RegisterPatientRequest": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "appointment_time": {
                    "type": "string"
                },
                "arrival_time": {
                    "type": "string"
                },
                "preferred_doctor_id": {
                    "type": "integer"
                }
            }
        }
    }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
