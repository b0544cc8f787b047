package server

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs

// @title sitedrop API
// @version 0.1
// @description Upload a static site and get it deployed to GitHub Pages.
// @contact.name sitedrop maintainers
// @contact.url https://github.com/raysh454/sitedrop
// @BasePath /
