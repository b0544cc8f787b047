package server

import "github.com/raysh454/sitedrop/internal/bundle"

// DeployedMessage is returned with every successful upload.
const DeployedMessage = "Your site has been successfully deployed. GitHub Pages may take a few minutes to fully activate."

// UploadResponse is returned by a successful synchronous upload.
type UploadResponse struct {
	HostingEndpoint string           `json:"hostingEndpoint" example:"https://octo.github.io/my-site-1718000000000/"`
	RepositoryURL   string           `json:"repositoryUrl" example:"https://github.com/octo/my-site-1718000000000"`
	RepositoryName  string           `json:"repositoryName" example:"my-site-1718000000000"`
	Message         string           `json:"message" example:"Your site has been successfully deployed."`
	Warnings        []bundle.Warning `json:"warnings,omitempty"`
}

// HealthResponse is the static liveness payload.
type HealthResponse struct {
	Status  string `json:"status" example:"OK"`
	Message string `json:"message" example:"Server is running"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"file type not allowed: logo.png"`
}
