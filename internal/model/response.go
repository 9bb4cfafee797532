package model

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func Success(data any) SuccessResponse {
	return SuccessResponse{Status: "success", Data: data}
}

func SuccessMessage(message string) SuccessResponse {
	return SuccessResponse{Status: "success", Message: message}
}
