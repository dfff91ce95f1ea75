package coordinator

var tipCatalog = [...]string{
	"The two-minute rule: If a task takes less than 2 minutes, do it now.",
	"Batch similar tasks together to reduce context switching.",
	"Take a 5-minute break every 25 minutes of focused work (Pomodoro technique).",
	"Start your day by eating the frog - do your hardest task first.",
	"Sleep 7-9 hours to maintain peak cognitive performance.",
	"Exercise regularly - even 20 minutes can boost brain function.",
	"Drink water throughout the day - dehydration reduces focus.",
	"Use the 1-3-5 rule: 1 big task, 3 medium tasks, 5 small tasks daily.",
	"Eliminate distractions: Put your phone in another room while working.",
	"Review your goals weekly to stay aligned with what matters.",
	"Deep work requires uninterrupted blocks of 90 minutes.",
	"Say no to things that don't align with your priorities.",
	"Use waiting time wisely - listen to podcasts or read articles.",
	"Delegate tasks that others can do well.",
	"Schedule your most creative work during your peak energy hours.",
	"Write down everything - free your mind for important thinking.",
	"Break large projects into small, actionable steps.",
	"Review tomorrow's tasks tonight so you start with clarity.",
	"Limit social media to specific times - don't scroll mindlessly.",
	"Your future self will thank you for what you do today.",
}

// Tips returns the productivity tip catalog in a fresh slice.
func Tips() []string {
	return append([]string(nil), tipCatalog[:]...)
}
