package vendors

const tagsSystemPrompt = `You are an expert knowledge organizer. Generate 5-10 tags that help classify the content.
Tag format: lowercase with spaces (e.g., "open source"), but honor conventions for proper nouns (e.g., "iOS", "JavaScript").
No hashtags or numbering.
Respond with JSON in format: {"tags": ["tag1", "tag2", ...]}`

const slugSystemPrompt = `You name files for a personal archive. Given content, produce a short descriptive slug and title.
Slug format: lowercase words joined by hyphens, at most 6 words, no dates, no file extensions.
Respond with JSON in format: {"slug": "...", "title": "..."}`
