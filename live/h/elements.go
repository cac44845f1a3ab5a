package h

import gh "maragu.dev/gomponents/html"

// Div creates a <div> element.
func Div(children ...H) H { return gh.Div(retype(children)...) }

// Main creates a <main> element.
func Main(children ...H) H { return gh.Main(retype(children)...) }

// Header creates a <header> element.
func Header(children ...H) H { return gh.Header(retype(children)...) }

// Section creates a <section> element.
func Section(children ...H) H { return gh.Section(retype(children)...) }

// H1 creates a <h1> element.
func H1(children ...H) H { return gh.H1(retype(children)...) }

// H2 creates a <h2> element.
func H2(children ...H) H { return gh.H2(retype(children)...) }

// P creates a <p> element.
func P(children ...H) H { return gh.P(retype(children)...) }

// Span creates a <span> element.
func Span(children ...H) H { return gh.Span(retype(children)...) }

// Strong creates a <strong> element.
func Strong(children ...H) H { return gh.Strong(retype(children)...) }

// Form creates a <form> element.
func Form(children ...H) H { return gh.Form(retype(children)...) }

// Label creates a <label> element.
func Label(children ...H) H { return gh.Label(retype(children)...) }

// Input creates an <input> element. It never has children, only attributes.
func Input(children ...H) H { return gh.Input(retype(children)...) }

// Button creates a <button> element.
func Button(children ...H) H { return gh.Button(retype(children)...) }

// Meta creates a <meta> element. The page head uses it to carry data-* directives.
func Meta(children ...H) H { return gh.Meta(retype(children)...) }

// Script creates a <script> element.
func Script(children ...H) H { return gh.Script(retype(children)...) }
