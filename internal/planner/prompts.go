package planner

// Prompt set for the planning pipeline. The planning prompt produces
// free-form reasoning; the parsing prompt turns that text into a strict JSON
// query list; the summary prompt compresses it for display.
const (
	planningPrompt = `You are a research planner. Given a research topic, think through
what a thorough investigation would need to cover: the key subtopics, the
kinds of sources likely to hold the answers, and the specific questions a
search engine could resolve. Finish with a list of concrete web search
queries that together cover the topic. Prefer specific, answerable queries
over broad ones.`

	planParsingPrompt = `You will receive a research plan written in free text. Extract the
web search queries it proposes. Respond with a JSON object of exactly this
shape and nothing else:

{"queries": ["query one", "query two"]}

Do not invent queries that are not in the plan. Do not wrap the JSON in
markdown fences.`

	planSummaryPrompt = `You will receive a research plan written in free text. Summarise it
in two or three plain sentences for a reader waiting for their research
report. Mention what will be investigated and roughly how. Do not use
markdown or bullet points.`

	refinePrompt = `You are steering an iterative web research session. You will receive
the research topic, the searches already executed, and summaries of what
those searches found. Decide whether further searching would materially
improve a final report.

If the gathered material already covers the topic, respond with:
{"queries": []}

Otherwise respond with new web search queries that target the gaps, as:
{"queries": ["query one", "query two"]}

Never repeat a search that was already executed. Respond with the JSON
object only.`
)
