package player

import "html/template"

var pages = template.Must(template.New("pages").Parse(`
{{define "player"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}}</title>
<style>
body{margin:0;background:#111;color:#eee;font-family:sans-serif;display:flex;flex-direction:column;align-items:center}
main{max-width:960px;width:100%;padding:16px;box-sizing:border-box}
video,img{width:100%;max-height:80vh;background:#000}
audio{width:100%}
a{color:#8cf}
</style>
</head>
<body>
<main>
<h1>{{.Name}}</h1>
{{if eq .Kind "video"}}<video controls autoplay preload="metadata" src="{{.URL}}"></video>
{{else if eq .Kind "audio"}}<audio controls autoplay src="{{.URL}}"></audio>
{{else if eq .Kind "image"}}<img alt="{{.Name}}" src="{{.URL}}">
{{end}}<p><a href="{{.URL}}" download>Download</a></p>
</main>
</body>
</html>{{end}}
{{define "error"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Error</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>{{end}}
`))
