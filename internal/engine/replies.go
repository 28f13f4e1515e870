package engine

// Canned Spanish replies. All user-facing automated text lives here so the
// copy can be reviewed in one place.
const (
	replyGreeting = "Hola, soy tu asistente de citas. ¿Te gustaría agendar una cita, reagendar o cancelar?"
	replyFallback = "Disculpa, no entendí tu mensaje. ¿En qué puedo ayudarte? Puedo ayudarte a agendar, reagendar o cancelar una cita."

	replyAskService           = "¡Perfecto! ¿Qué servicio te gustaría agendar?"
	replyAskServiceReschedule = "Entendido, vamos a reagendar tu cita. ¿Cuál es el servicio de tu cita actual?"
	replyAskServiceCancel     = "Entendido. ¿Podrías indicarme qué servicio tenías agendado?"
	replyAskDate              = "¿Qué día y hora te funcionaría mejor para tu cita?"

	replyNoAvailability     = "Lo siento, no hay disponibilidad para esa fecha. ¿Podrías probar con otra fecha?"
	replyAvailabilityFailed = "Lo siento, no pude consultar los horarios en este momento. Por favor intenta de nuevo en unos minutos."
	replySlotsHeader    = "Estos son los horarios disponibles:"
	replySlotsFooter    = "¿Cuál prefieres? Responde con el número."
	replyBookingFailed  = "Lo siento, tuvimos un problema al procesar tu cita. Por favor intenta de nuevo en un momento."
	replyBookedFmt      = "¡Listo! Tu cita ha sido confirmada. Te esperamos el %s. ¿Necesitas algo más?"
	replyBookedFollowUp = "¡Tu cita está confirmada! ¿Hay algo más en lo que pueda ayudarte?"

	replyInfoNotFound = "No encontré información sobre eso. ¿Puedo ayudarte con una cita?"

	replyEscalation  = "Entendido, te comunicaré con un agente humano. Por favor espera un momento."
	replyHandoffHold = "Un agente humano te atenderá pronto. Gracias por tu paciencia."

	handoffReasonRequested = "Cliente solicitó hablar con un humano"
)
