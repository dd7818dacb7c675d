package web

import (
	"fmt"
	"html/template"
)

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"percent": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
	"dist":    func(f float64) string { return fmt.Sprintf("%.3f", f) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Book Reader</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; color: #222; }
section { border: 1px solid #ddd; border-radius: 6px; padding: 1rem; margin-bottom: 1rem; }
table { border-collapse: collapse; width: 100%; }
td, th { text-align: left; padding: .25rem .5rem; border-bottom: 1px solid #eee; }
.msg { background: #eef6ee; padding: .5rem; }
.err { background: #fbeaea; padding: .5rem; }
.answer { font-size: 1.4rem; font-weight: bold; }
.context strong { background: #fff3a3; }
.candidate { color: #555; font-size: .9rem; margin: .5rem 0; }
</style>
</head>
<body>
<h1>Book Reader</h1>
{{if .Message}}<p class="msg">{{.Message}}</p>{{end}}
{{if .Error}}<p class="err">{{.Error}}</p>{{end}}

<section>
<h2>Add a book</h2>
<form action="/books" method="post" enctype="multipart/form-data">
<input type="file" name="file" accept=".pdf,.txt,.docx" required>
<label><input type="checkbox" name="replace" value="true"> replace existing</label>
<button type="submit">Upload</button>
</form>
</section>

<section>
<h2>Books</h2>
{{if .Books}}
<table>
<tr><th>Book</th><th>Format</th><th>Chunks</th><th>Added</th><th></th></tr>
{{range .Books}}
<tr>
<td>{{.Title}}</td><td>{{.Format}}</td><td>{{.Chunks}}</td><td>{{.AddedAt.Format "2006-01-02 15:04"}}</td>
<td><form action="/books/{{.ID}}/delete" method="post"><button type="submit">Remove</button></form></td>
</tr>
{{end}}
</table>
<form action="/reset" method="post"><button type="submit">Remove all</button></form>
{{else}}
<p>No books indexed yet.</p>
{{end}}
</section>

<section>
<h2>Ask</h2>
<form action="/" method="get">
<input type="text" name="question" value="{{.Question}}" size="60" required>
<label>top k
<select name="top_k">{{$k := .TopK}}{{range .TopKs}}<option value="{{.}}"{{if eq . $k}} selected{{end}}>{{.}}</option>{{end}}</select>
</label>
<button type="submit">Ask</button>
</form>
{{with .Answer}}
<p class="answer">{{.Text}}</p>
<p>Confidence {{percent .Confidence}} &middot; source {{.Citation.Chunk.BookID}}, chunk {{.Citation.Chunk.Position}} (distance {{dist .Citation.Distance}})</p>
<div class="context">{{.Highlighted}}</div>
<h3>Retrieved contexts</h3>
{{range .Candidates}}
<div class="candidate"><b>{{.Chunk.BookID}} #{{.Chunk.Position}}</b> ({{dist .Distance}}): {{.Chunk.Text}}</div>
{{end}}
{{end}}
</section>
</body>
</html>
`))
