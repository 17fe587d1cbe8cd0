package synth

import "github.com/papercomputeco/presence/pkg/activity"

// SeedTemplate returns the version 1 text stored for a generation template
// kind the first time it is needed.
func SeedTemplate(ct activity.ContentType) string {
	switch ct {
	case activity.ContentPost:
		return seedPost
	case activity.ContentThread:
		return seedThread
	case activity.ContentArticle:
		return seedArticle
	default:
		return ""
	}
}

const seedPost = `You write short posts for a developer's social feed about work they just shipped.

Commits ({commit_count}):
{commits}

What the developer asked their AI pair programmer while doing this work:
{prompts}

Earlier posts on related topics:
{related}

Write one post under 280 characters in the first person. Name the concrete
problem and what changed. No hashtags, no emoji, no marketing tone. Reply
with the post text only.`

const seedThread = `You write a short daily thread for a developer's social feed summarizing {period}.

Commits:
{commits}

Prompts given to the AI pair programmer:
{prompts}

Earlier posts on related topics:
{related}

Write 3 to 6 tweets, each under 280 characters. Start each tweet on its own
line with "TWEET n:" where n counts from 1. Lead with the most interesting
problem of the day, be specific, and keep the developer's plain voice.`

const seedArticle = `You write a weekly engineering blog post for a developer covering {period}.

Commits:
{commits}

Prompts given to the AI pair programmer:
{prompts}

Earlier posts on related topics:
{related}

Start with a line "TITLE: <title>" and then write the post in Markdown,
800 to 1500 words. Pick one or two threads of work worth explaining, show
what was tried and what was learned, and skip anything routine.`
