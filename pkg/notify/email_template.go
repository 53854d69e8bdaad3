package notify

const digestHTMLTemplate = `<h1>{{.Title}}</h1>
{{- range .Projects}}<h2>Project: {{.Name}}</h2>
{{- range .Competitors}}<h3>Competitor: {{.Name}}</h3><ul>
{{- range .Pages}}<li><strong>{{.PageType}} ({{.URL}}):</strong><br/>
{{- range $i, $line := .Lines}}{{if $i}}<br/>{{end}}{{$line}}{{end}}</li>
{{- end}}</ul>
{{- end}}
{{- end}}`
