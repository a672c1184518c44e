package chatfsm

// Conversation copy sent by the booking bot. Kept in one place so the
// wording can be tuned without touching the state machine.
const (
	msgMenu = "¡Hola! 👋 Soy el asistente de agendamiento.\n\n" +
		"*1.* Agendar una hora\n" +
		"*2.* Consultar mis reservas\n" +
		"*3.* Hablar con un ejecutivo\n\n" +
		"Responde con el número de la opción."

	msgMenuReset     = "Volvamos al inicio. 🔄"
	msgCancelled     = "Listo, cancelé el proceso. Escribe *menu* cuando quieras agendar. 👍"
	msgHumanHandoff  = "Te contactaremos con un ejecutivo a la brevedad. 🧑‍💼"
	msgUnknownOption = "No entendí esa opción. Responde *1*, *2* o *3*, o escribe *menu*."

	msgServiceListHeader = "*Nuestros servicios:*\n\n"
	msgServiceListFooter = "\nResponde con el número del servicio."
	msgServiceSelected   = "Elegiste *%s* (%d min). 📅\n\n¿Para qué fecha? Formato *DD/MM/AAAA*."
	msgServiceBadOption  = "Esa opción no existe. Responde un número entre 1 y %d."
	msgServiceBadFormat  = "Responde solo con el número del servicio, por favor."

	msgDateBadFormat = "No pude leer esa fecha. Usa el formato *DD/MM/AAAA*, por ejemplo %s."
	msgDatePast      = "Esa fecha ya pasó. Indica una fecha desde el %s."
	msgDateTooFar    = "Solo agendamos hasta el %s. Elige una fecha más cercana."
	msgDateNoSlots   = "😔 No hay horas disponibles para el %s.\n\nPrueba con otra fecha o escribe *menu*."

	msgTimeSlotsHeader   = "*Horarios disponibles para el %s:*\n\n"
	msgTimeSlotsFooter   = "\nResponde con el número del horario."
	msgTimeSlotsCapped   = "\n_(Mostrando los primeros %d horarios)_\n"
	msgTimeBadOption     = "Esa opción no existe. Responde un número entre 1 y %d."
	msgTimeBadFormat     = "Responde solo con el número del horario, por favor."
	msgTimeSessionLost   = "Tu sesión expiró. Escribe *menu* para comenzar de nuevo."
	msgTimeSelected      = "Perfecto, reservaré las *%s*. ⏳"

	msgEmailRequest = "Para terminar necesito tu correo electrónico. ✉️"
	msgEmailInvalid = "Ese correo no parece válido. Inténtalo de nuevo."
	msgEmailLinked  = "¡Gracias, %s! Vinculé este teléfono a tu cuenta."
	msgEmailCreated = "Creé tu cuenta con el correo %s. ✅"

	msgAddressRequest = "¿A qué dirección vamos? 🏠\nEj: Av. Vicuña Mackenna 4927, Depto 3108, San Joaquín"

	msgBookingFailed = "😔 No pude completar la reserva en ese horario (puede que alguien lo tomara recién).\n\n" +
		"Escribe *menu* para intentar con otro horario."

	msgBookingConfirmed = "✅ *¡Reserva confirmada!*\n\n" +
		"📋 N°: %s\n" +
		"🔧 Servicio: %s (%d min)\n" +
		"📅 Fecha: %s a las %s\n" +
		"🧑‍🔧 Profesional: %s\n" +
		"📍 Dirección: %s\n\n" +
		"¡Te esperamos! Escribe *menu* si necesitas algo más."

	msgNoReservations = "No encontré reservas activas asociadas a este teléfono."
	msgReservationRow = "• %s — %s (%s)\n"

	msgHelp = "Comandos disponibles:\n" +
		"*menu* — volver al inicio\n" +
		"*cancelar* — descartar lo que llevamos\n" +
		"*ayuda* — este mensaje"

	msgError = "⚠️ Algo salió mal de nuestro lado. Escribe *menu* para reintentar."
)
