package mcpserver

// DirectiveSyntaxContract describes the directive grammar that documents
// may use. LLM consumers read it before generating Markdown so directives
// come out well formed.
const DirectiveSyntaxContract = `# Directive Syntax

docrender extends CommonMark with block directives. This document is the
authoring contract for them.

## Container directives

` + "```" + `markdown
:::note{.compact title="Read me first"}
Body in **standard Markdown**. Containers may nest:

::::details{summary="More"}
Inner content.
::::
:::
` + "```" + `

- An opening fence is three or more colons, a name, then an optional
  ` + "`" + `{...}` + "`" + ` attribute list. Nothing else may follow on the line.
- A closing fence is three or more colons alone on a line. It always closes
  the innermost open container; the colon counts do not have to match.
- Names start with a letter and continue with letters, digits, ` + "`" + `_` + "`" + ` or ` + "`" + `-` + "`" + `.
- Up to three spaces of indentation are allowed on fence lines.
- An unclosed container runs to the end of the document and is reported as
  a diagnostic, so always close what you open.

## Leaf directives

` + "```" + `markdown
::toc{depth=2}
` + "```" + `

Exactly two colons, a name, an optional attribute list, no body.

## Attribute lists

` + "```" + `markdown
:::warning{.wide .compact severity=high title="Check twice"}
` + "```" + `

- ` + "`" + `.token` + "`" + ` adds a class; duplicates are dropped, order is kept.
- ` + "`" + `key=value` + "`" + ` sets an attribute. Values may be bare words or double
  quoted with ` + "`" + `\"` + "`" + ` and ` + "`" + `\\` + "`" + ` escapes.
- Repeating a key keeps its first position but takes the last value.

## Built-in directive names

- ` + "`" + `note` + "`" + `, ` + "`" + `tip` + "`" + `, ` + "`" + `warning` + "`" + `, ` + "`" + `caution` + "`" + `, ` + "`" + `alert` + "`" + ` render as callouts
  (the callouts plugin adds an icon and an accessibility role).
- ` + "`" + `ai-context` + "`" + ` holds briefing text for AI assistants. It is hidden from
  rendered output unless it carries ` + "`" + `visibility=visible` + "`" + `. Body lines of
  the form ` + "`" + `key: value` + "`" + ` (a ` + "`" + `-` + "`" + ` or ` + "`" + `*` + "`" + ` bullet is allowed) become
  metadata on the extracted record; keys are lowercased and the first
  occurrence of a key wins.

## Runnable code blocks

` + "````" + `markdown
` + "```" + `js run
1 + 1
` + "```" + `
` + "````" + `

A fenced code block whose info string carries the ` + "`" + `run` + "`" + ` flag is a script
block. Whether it may execute is decided per document by the trust gate;
authors only mark intent.
`
