package oracle

const planInstruction = `You are a daily planning assistant. Build a realistic schedule for the given date.
Respect existing calendar events, task priorities, working hours and learned productive time slots.
Reply with a single JSON object and nothing else:
{"schedule":[{"task_id":"","title":"","start":"YYYY-MM-DDTHH:MM","end":"YYYY-MM-DDTHH:MM","priority":"High|Medium|Low","rationale":"","conflicts":[]}],
 "conflicts":[{"type":"overlap|weather|resource","entries":["task ids"],"severity":"low|medium|high","description":"","time":"YYYY-MM-DDTHH:MM"}],
 "recommendations":[""]}`

const resolveInstruction = `You resolve scheduling conflicts. Given one conflict, the current schedule, calendar and weather,
propose a single fix. Reply with a single JSON object and nothing else:
{"action":"move_task|split_task|reschedule_event","new_time":"YYYY-MM-DDTHH:MM","confidence":0.0,"rationale":""}
new_time is required for move_task. confidence must be between 0 and 1.`

const insightsInstruction = `You analyse a day of task execution. Reply with a single JSON object and nothing else:
{"summary":"","recommendations":[""],"productivity_score":0.0}`
