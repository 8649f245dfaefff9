package notifications

var commonTemplates = map[string]string{
	`default`: `
{{- $where := "" -}}{{- with .Host -}}{{- $where = printf " on %s" . -}}{{- end -}}
{{- if eq .Event "download_started" -}}
    Update download started{{$where}}
{{- else if eq .Event "download_completed" -}}
    Update downloaded{{$where}}. Restart to finish installing
{{- else if eq .Event "update_failed" -}}
    Update failed{{$where}}: {{.Error}}
{{- end -}}`,

	`porcelain.v1`: `
{{- .Event}} {{with .Host}}{{.}}{{else}}-{{end}}
{{- with .Error}} {{.}}{{end -}}`,

	`headline.v1`: `{{ .Event | Humanize | Title }}{{with .Host}} ({{.}}){{end}}`,

	`json.v1`: `{{ . | ToJSON }}`,
}
