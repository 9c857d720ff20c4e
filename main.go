package main

import "github.com/killallgit/dataset-importer/cmd"

// @title           YOLO Dataset Importer API
// @version         1.0.0
// @description     Ingests YOLO object-detection dataset archives from object storage and serves annotated image listings with signed URLs
// @contact.name    API Support
// @contact.url     https://github.com/killallgit/dataset-importer
// @license.name    MIT
// @license.url     https://opensource.org/licenses/MIT
// @host            localhost:8080
// @BasePath        /
// @schemes         http https
func main() {
	cmd.Execute()
}
