package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	MetaBookID   = "book_id"
	MetaPosition = "position"
	MetaStart    = "start"
	MetaEnd      = "end"
	MetaSeq      = "seq"
)

var (
	ExtractPromptTemplate = `You are an extractive question answering system.
Answer the question by copying the shortest exact span from the context. Do not paraphrase.
Respond only with JSON of the form {"answer": "<exact span>", "confidence": <number between 0 and 1>}.
If the context does not contain the answer respond with {"answer": "", "confidence": 0}.
<context>
%s
</context>
Question: %s
`
)
