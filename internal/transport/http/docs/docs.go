// Package docs 注册 Swagger 文档，内容与处理器上的 godoc 注解保持一致
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
        "/api/search": {
            "get": {
                "description": "目前只有 YouTube 支持搜索，默认返回 5 条",
                "produces": ["application/json"],
                "tags": ["下载"],
                "summary": "搜索媒体",
                "parameters": [
                    {"type": "string", "description": "关键词", "name": "q", "in": "query", "required": true},
                    {"type": "string", "default": "youtube", "description": "平台", "name": "platform", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SearchResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/LegacyError"}}
                }
            }
        },
        "/api/download": {
            "get": {
                "description": "同步下载，完成后返回文件地址；携带登录会话时记录下载历史",
                "produces": ["application/json"],
                "tags": ["下载"],
                "summary": "下载媒体",
                "parameters": [
                    {"type": "string", "description": "媒体链接", "name": "url", "in": "query", "required": true},
                    {"type": "string", "description": "平台，留空时按域名识别", "name": "platform", "in": "query"},
                    {"type": "string", "default": "video", "description": "video 或 audio", "name": "format", "in": "query"},
                    {"type": "string", "default": "best", "description": "best、720p、480p、360p", "name": "quality", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/DownloadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/LegacyError"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/LegacyError"}}
                }
            }
        },
        "/api/download/{platform}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "每次调用都会记录下载历史；每个密钥单独限流",
                "produces": ["application/json"],
                "tags": ["下载"],
                "summary": "使用 API Key 下载",
                "parameters": [
                    {"enum": ["youtube", "instagram", "tiktok"], "type": "string", "description": "平台", "name": "platform", "in": "path", "required": true},
                    {"type": "string", "description": "媒体链接", "name": "url", "in": "query", "required": true},
                    {"type": "string", "default": "video", "description": "video 或 audio", "name": "format", "in": "query"},
                    {"type": "string", "default": "best", "description": "best、720p、480p、360p", "name": "quality", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/APIDownloadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/APIError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/APIError"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/download/{id}": {
            "get": {
                "description": "以附件形式返回下载目录中的文件",
                "produces": ["application/octet-stream"],
                "tags": ["下载"],
                "summary": "获取下载文件",
                "parameters": [
                    {"type": "string", "description": "下载ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/api/platforms": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Public"],
                "summary": "获取支持的平台",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}}}
            }
        },
        "/register": {
            "post": {
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["账户"],
                "summary": "用户注册",
                "parameters": [
                    {"description": "注册信息", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Response"}},
                    "400": {"description": "请求参数错误", "schema": {"$ref": "#/definitions/Response"}},
                    "409": {"description": "用户名或邮箱已存在", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/login": {
            "post": {
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["账户"],
                "summary": "用户登录",
                "parameters": [
                    {"description": "登录信息", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}},
                    "401": {"description": "用户名或密码错误", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/refresh": {
            "post": {
                "produces": ["application/json"],
                "tags": ["账户"],
                "summary": "刷新令牌",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/logout": {
            "post": {
                "produces": ["application/json"],
                "tags": ["账户"],
                "summary": "退出登录",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}}}
            }
        },
        "/dashboard": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["账户"],
                "summary": "用户面板",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/api-keys": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["API Key"],
                "summary": "列出 API Key",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}}}
            }
        },
        "/generate-api-key": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["API Key"],
                "summary": "生成 API Key",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/revoke-api-key/{id}": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["API Key"],
                "summary": "吊销 API Key",
                "parameters": [
                    {"type": "string", "description": "密钥ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/Response"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Ops"],
                "summary": "详细健康报告",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/alerts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Ops"],
                "summary": "告警列表",
                "parameters": [
                    {"type": "boolean", "description": "只返回未解除的告警", "name": "active", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Response"}}}
            }
        }
    },
    "definitions": {
        "Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "msg": {"type": "string"},
                "data": {}
            }
        },
        "LegacyError": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "error": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "SearchResult": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "url": {"type": "string"},
                "thumbnail": {"type": "string"},
                "duration": {"type": "number"},
                "uploader": {"type": "string"}
            }
        },
        "SearchResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/SearchResult"}}
            }
        },
        "DownloadResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "id": {"type": "string"},
                "title": {"type": "string"},
                "file_name": {"type": "string"},
                "size": {"type": "integer"},
                "size_human": {"type": "string"},
                "download_url": {"type": "string"}
            }
        },
        "APIDownloadResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "url": {"type": "string"},
                "format": {"type": "string"},
                "quality": {"type": "string"},
                "title": {"type": "string"},
                "file_name": {"type": "string"},
                "size": {"type": "integer"},
                "download_url": {"type": "string"}
            }
        },
        "RegisterRequest": {
            "type": "object",
            "required": ["username", "email", "password"],
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "username": {"type": "string", "description": "用户名或邮箱"},
                "password": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"},
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo 文档元信息，Host 可在启动时覆盖
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Media Downloader API",
	Description:      "YouTube、Instagram、TikTok 媒体下载服务",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
