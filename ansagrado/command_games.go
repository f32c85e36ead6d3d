package ansagrado

import (
	"context"
	"errors"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/games"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/mitchellh/mapstructure"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	msgHangmanUsage     = "Usa /letra para probar una letra, /adivinar para la palabra completa o /pista para una pista."
	msgInvalidLetter    = "⚠️ Escribe una sola letra."
	msgNoHintsLeft      = "🤷 No quedan pistas."
	msgRPSWaiting       = "⏳ Esperando a que se una otro jugador."
	msgRPSAlreadyJoined = "⚠️ Ya estás en la partida."
	msgRPSFull          = "⚠️ La partida ya tiene dos jugadores."
	msgRPSNotAPlayer    = "⚠️ No participas en esta partida."
	msgRPSAlreadyPlayed = "⚠️ Ya elegiste tu jugada."
	msgRPSInvalidChoice = "⚠️ Jugada no válida. Elige piedra, papel o tijeras."
	msgTriviaOver       = "⌛ La trivia ya terminó."
	msgCancelNoGame     = "⚠️ No hay ningún juego en curso en este canal."
	gameResultWon       = "ganado"
	gameResultLost      = "perdido"
	gameResultDraw      = "empate"
	gameResultCancelled = "cancelado"
	gameResultFinished  = "terminado"
	gameResultNoAnswers = "sin_respuestas"
)

var rpsEmoji = map[games.Choice]string{
	games.ChoiceRock:     "🪨",
	games.ChoicePaper:    "📄",
	games.ChoiceScissors: "✂️",
}

// newGameLog builds the logs collection document recording a finished or
// cancelled game.
func newGameLog(
	g *activeGame,
	result string,
	players []string,
	now time.Time,
) datastore.Document {
	doc := datastore.Document{
		"tipo":         logTypeGame,
		"juego":        string(g.kind),
		"resultado":    result,
		"jugadores":    players,
		"channel_id":   g.channelID,
		"guild_id":     g.guildID,
		"iniciado_por": g.startedBy,
		"inicio":       g.startedAt.Format(time.RFC3339),
		"timestamp":    now.Format(time.RFC3339),
	}
	if h := g.hangman(); h != nil {
		doc["palabra"] = h.Word()
	}
	return doc
}

// endGame removes g from its channel and records its result.
func (b *Bot) endGame(ctx context.Context, g *activeGame, result string, players []string) {
	b.games.remove(g)
	b.writeLog(ctx, newGameLog(g, result, players, b.now()))
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

// commandHangman starts a hangman game in the channel. Word generation may
// call the AI, so the response is deferred and edited once the board is
// ready.
func (b *Bot) commandHangman(
	ctx context.Context,
	handler InteractionHandler,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	i := handler.GetInteraction()
	if _, ok := b.games.current(i.ChannelID); ok {
		return ephemeralResponse(msgGameInProgress), nil
	}

	if err := handler.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	); err != nil {
		handler.Logger().ErrorContext(ctx, "error deferring hangman response", tint.Err(err))
		return nil, nil
	}

	word := b.words.Generate(ctx)
	hangman := games.NewHangman(word.Word, word.Hints)
	g := &activeGame{
		kind:      gameHangman,
		game:      hangman,
		channelID: i.ChannelID,
		guildID:   i.GuildID,
		startedBy: u.ID,
		startedAt: b.now(),
	}

	content := fmt.Sprintf(
		"🎮 **¡Nuevo juego de ahorcado!**\n%s\n%s",
		hangman.Render(),
		msgHangmanUsage,
	)
	if err := b.games.start(g); err != nil {
		content = msgGameInProgress
	}
	_, _ = handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
	return nil, nil
}

func (b *Bot) commandLetter(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	g, ok := b.games.get(i.ChannelID, gameHangman)
	if !ok {
		return ephemeralResponse(msgNoGameInProgress), nil
	}
	hangman := g.hangman()
	letter := strings.ToUpper(stringOption(i, optionLetter))

	result, err := hangman.GuessLetter(letter)
	if err != nil {
		if errors.Is(err, games.ErrGameOver) {
			return ephemeralResponse(msgNoGameInProgress), nil
		}
		return nil, err
	}

	var header string
	switch result {
	case games.GuessInvalid:
		return ephemeralResponse(msgInvalidLetter), nil
	case games.GuessRepeated:
		return ephemeralResponse(fmt.Sprintf("⚠️ La letra **%s** ya se probó.", letter)), nil
	case games.GuessHit:
		header = fmt.Sprintf("✅ %s acertó la letra **%s**.", mention(u.ID), letter)
	default:
		header = fmt.Sprintf("❌ La letra **%s** no está en la palabra.", letter)
	}
	return messageResponse(b.hangmanProgress(ctx, g, u, header)), nil
}

func (b *Bot) commandGuessWord(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	g, ok := b.games.get(i.ChannelID, gameHangman)
	if !ok {
		return ephemeralResponse(msgNoGameInProgress), nil
	}
	guess := stringOption(i, optionWord)
	if guess == "" {
		return ephemeralResponse(msgInvalidLetter), nil
	}

	correct, err := g.hangman().GuessWord(guess)
	if err != nil {
		if errors.Is(err, games.ErrGameOver) {
			return ephemeralResponse(msgNoGameInProgress), nil
		}
		return nil, err
	}
	header := fmt.Sprintf("❌ **%s** no es la palabra.", strings.ToUpper(guess))
	if correct {
		header = fmt.Sprintf("✅ %s adivinó la palabra.", mention(u.ID))
	}
	return messageResponse(b.hangmanProgress(ctx, g, u, header)), nil
}

// hangmanProgress renders the board after a guess, ending the game if the
// guess decided it.
func (b *Bot) hangmanProgress(
	ctx context.Context,
	g *activeGame,
	u *discordgo.User,
	header string,
) string {
	hangman := g.hangman()
	content := header + "\n" + hangman.Render()
	if hangman.State() != games.StateFinished {
		return content
	}
	if hangman.Won() {
		b.endGame(ctx, g, gameResultWon, []string{u.ID})
		return content + fmt.Sprintf("\n🎉 ¡Ganaste! La palabra era **%s**.", hangman.Word())
	}
	b.endGame(ctx, g, gameResultLost, []string{u.ID})
	return content + fmt.Sprintf("\n💀 ¡Perdieron! La palabra era **%s**.", hangman.Word())
}

func (b *Bot) commandHint(i *discordgo.InteractionCreate) (*discordgo.InteractionResponse, error) {
	g, ok := b.games.get(i.ChannelID, gameHangman)
	if !ok {
		return ephemeralResponse(msgNoGameInProgress), nil
	}
	hangman := g.hangman()
	hint, ok := hangman.Hint()
	if !ok {
		return ephemeralResponse(msgNoHintsLeft), nil
	}
	return messageResponse(
		fmt.Sprintf("💡 Pista: **%s** (quedan %d)", hint, hangman.HintsLeft()),
	), nil
}

// commandRPS opens a rock-paper-scissors game, waiting for a second player
// to press the join button.
func (b *Bot) commandRPS(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	rps := games.NewRockPaperScissors()
	rps.Join(u.ID)
	g := &activeGame{
		kind:      gameRPS,
		game:      rps,
		channelID: i.ChannelID,
		guildID:   i.GuildID,
		startedBy: u.ID,
		startedAt: b.now(),
	}
	if err := b.games.start(g); err != nil {
		return ephemeralResponse(msgGameInProgress), nil
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf(
				"✊✋✌️ %s quiere jugar a piedra, papel o tijeras. ¡Pulsa el botón para unirte!",
				mention(u.ID),
			),
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Unirme",
							Style:    discordgo.PrimaryButton,
							CustomID: rpsJoinCustomID,
						},
					},
				},
			},
		},
	}, nil
}

func (b *Bot) componentRPSJoin(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	g, ok := b.games.get(i.ChannelID, gameRPS)
	if !ok {
		return ephemeralResponse(msgNoGameInProgress), nil
	}
	rps := g.rps()
	if !rps.Join(u.ID) {
		for _, p := range rps.Players() {
			if p == u.ID {
				return ephemeralResponse(msgRPSAlreadyJoined), nil
			}
		}
		return ephemeralResponse(msgRPSFull), nil
	}

	players := rps.Players()
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf(
				"⚔️ %s contra %s. Usen /%s para elegir su jugada.",
				mention(players[0]),
				mention(players[1]),
				CommandRPSPlay,
			),
			Components: []discordgo.MessageComponent{},
		},
	}, nil
}

func (b *Bot) commandRPSPlay(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	g, ok := b.games.get(i.ChannelID, gameRPS)
	if !ok {
		return ephemeralResponse(msgNoGameInProgress), nil
	}
	rps := g.rps()

	done, err := rps.Play(u.ID, stringOption(i, optionChoice))
	switch {
	case errors.Is(err, games.ErrInvalidChoice):
		return ephemeralResponse(msgRPSInvalidChoice), nil
	case errors.Is(err, games.ErrNotAPlayer):
		return ephemeralResponse(msgRPSNotAPlayer), nil
	case errors.Is(err, games.ErrAlreadyPlayed):
		return ephemeralResponse(msgRPSAlreadyPlayed), nil
	case errors.Is(err, games.ErrGameOver):
		if rps.State() == games.StateWaiting {
			return ephemeralResponse(msgRPSWaiting), nil
		}
		return ephemeralResponse(msgNoGameInProgress), nil
	case err != nil:
		return nil, err
	}

	if !done {
		choice, _ := rps.ChoiceOf(u.ID)
		return ephemeralResponse(
			fmt.Sprintf("✅ Elegiste %s **%s**. Esperando al otro jugador.", rpsEmoji[choice], choice),
		), nil
	}

	players := rps.Players()
	lines := make([]string, 0, len(players)+1)
	for _, p := range players {
		c, _ := rps.ChoiceOf(p)
		lines = append(lines, fmt.Sprintf("%s eligió %s **%s**", mention(p), rpsEmoji[c], c))
	}
	winner, draw := rps.Outcome()
	if draw {
		lines = append(lines, "🤝 ¡Empate!")
		b.endGame(ctx, g, gameResultDraw, players)
	} else {
		lines = append(lines, fmt.Sprintf("🏆 ¡Gana %s!", mention(winner)))
		b.endGame(ctx, g, gameResultWon, []string{winner})
	}
	return messageResponse(strings.Join(lines, "\n")), nil
}

// commandTrivia posts a question with one button per option. Answers are
// collected for TriviaDuration, then the message is edited with the
// results.
func (b *Bot) commandTrivia(
	ctx context.Context,
	handler InteractionHandler,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	i := handler.GetInteraction()
	if _, ok := b.games.current(i.ChannelID); ok {
		return ephemeralResponse(msgGameInProgress), nil
	}

	questions := b.triviaQuestions(ctx)
	if len(questions) == 0 {
		questions = games.DefaultQuestions
	}
	trivia, err := games.NewTrivia(questions[rand.IntN(len(questions))])
	if err != nil {
		return nil, err
	}
	g := &activeGame{
		kind:      gameTrivia,
		game:      trivia,
		channelID: i.ChannelID,
		guildID:   i.GuildID,
		startedBy: u.ID,
		startedAt: b.now(),
	}
	if err = b.games.start(g); err != nil {
		return ephemeralResponse(msgGameInProgress), nil
	}

	q := trivia.Question()
	buttons := make([]discordgo.MessageComponent, 0, len(q.Options))
	for idx, opt := range q.Options {
		buttons = append(
			buttons,
			discordgo.Button{
				Label:    truncate(opt, 80),
				Style:    discordgo.SecondaryButton,
				CustomID: triviaAnswerCustomIDPrefix + strconv.Itoa(idx),
			},
		)
	}
	var rows []discordgo.MessageComponent
	for _, row := range chunkItems(discordMaxButtons, buttons...) {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}

	duration := b.config.TriviaDuration
	if duration <= 0 {
		duration = DefaultTriviaDuration
	}
	embed := &discordgo.MessageEmbed{
		Title:       "❓ Trivia",
		Description: q.Text,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Categoría", Value: q.Category, Inline: true},
			{Name: "Dificultad", Value: q.Difficulty, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Tienen %s para responder", duration),
		},
	}
	err = handler.Respond(
		ctx,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds:     []*discordgo.MessageEmbed{embed},
				Components: rows,
			},
		},
	)
	if err != nil {
		trivia.Cancel()
		b.games.remove(g)
		return nil, nil
	}

	b.interactionWG.Add(1)
	go func() {
		defer b.interactionWG.Done()
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			trivia.Cancel()
			b.games.remove(g)
			return
		case <-timer.C:
		}
		b.finishTrivia(context.WithoutCancel(ctx), handler, g, embed)
	}()
	return nil, nil
}

// finishTrivia closes the question, edits the original message with the
// correct answer and the winners, and logs the game.
func (b *Bot) finishTrivia(
	ctx context.Context,
	handler InteractionHandler,
	g *activeGame,
	embed *discordgo.MessageEmbed,
) {
	trivia := g.trivia()
	trivia.Finish()
	if trivia.State() != games.StateFinished {
		// cancelled with /cancelar
		b.games.remove(g)
		return
	}

	q := trivia.Question()
	results := trivia.Results()
	winners := trivia.Winners()

	var summary string
	result := gameResultFinished
	switch {
	case len(results) == 0:
		summary = "Nadie respondió."
		result = gameResultNoAnswers
	case len(winners) == 0:
		summary = "Nadie acertó. 😔"
	default:
		names := make([]string, len(winners))
		for idx, w := range winners {
			names[idx] = mention(w)
		}
		summary = "🏆 Acertaron: " + strings.Join(names, ", ")
	}
	embed.Fields = append(
		embed.Fields,
		&discordgo.MessageEmbedField{
			Name:  "Respuesta correcta",
			Value: q.Options[q.Answer],
		},
		&discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("Resultados (%d respuestas)", len(results)),
			Value: summary,
		},
	)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Trivia terminada"}

	if _, err := handler.Edit(
		ctx,
		&discordgo.WebhookEdit{
			Embeds:     &[]*discordgo.MessageEmbed{embed},
			Components: &[]discordgo.MessageComponent{},
		},
	); err != nil {
		handler.Logger().ErrorContext(ctx, "error editing trivia results", tint.Err(err))
	}

	players := make([]string, 0, len(results))
	for p := range results {
		players = append(players, p)
	}
	b.endGame(ctx, g, result, players)
}

func (b *Bot) componentTriviaAnswer(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
	option string,
) (*discordgo.InteractionResponse, error) {
	idx, err := strconv.Atoi(option)
	if err != nil {
		return ephemeralResponse(msgUnknownCommand), nil
	}
	g, ok := b.games.get(i.ChannelID, gameTrivia)
	if !ok {
		return ephemeralResponse(msgTriviaOver), nil
	}
	trivia := g.trivia()
	if _, err = trivia.Answer(u.ID, idx); err != nil {
		switch {
		case errors.Is(err, games.ErrGameOver):
			return ephemeralResponse(msgTriviaOver), nil
		case errors.Is(err, games.ErrInvalidAnswer):
			return ephemeralResponse(msgUnknownCommand), nil
		default:
			return nil, err
		}
	}
	return ephemeralResponse(
		fmt.Sprintf("📝 Respuesta registrada: **%s**", trivia.Question().Options[idx]),
	), nil
}

// commandCancel cancels the channel's game. Only whoever started it, or
// a member who can manage messages, may cancel.
func (b *Bot) commandCancel(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	u *discordgo.User,
) (*discordgo.InteractionResponse, error) {
	g, ok := b.games.current(i.ChannelID)
	if !ok {
		return ephemeralResponse(msgCancelNoGame), nil
	}
	if g.startedBy != u.ID && !memberHasPermission(i, discordgo.PermissionManageMessages) {
		return ephemeralResponse(msgNoPermission), nil
	}

	g.game.Cancel()
	content := fmt.Sprintf("🛑 Juego de %s cancelado.", g.kind)
	if h := g.hangman(); h != nil {
		content += fmt.Sprintf(" La palabra era **%s**.", h.Word())
	}
	b.endGame(ctx, g, gameResultCancelled, []string{u.ID})
	return messageResponse(content), nil
}

// memberHasPermission reports whether the invoking guild member has
// perm, or is an administrator.
func memberHasPermission(i *discordgo.InteractionCreate, perm int64) bool {
	if i.Member == nil {
		return false
	}
	perms := i.Member.Permissions
	return perms&discordgo.PermissionAdministrator != 0 || perms&perm != 0
}

// loadTriviaQuestions reads the questions collection, skipping invalid
// entries. If nothing usable is stored, or the store fails, the built-in
// questions are returned.
func (b *Bot) loadTriviaQuestions(ctx context.Context) []games.Question {
	logger := contextLoggerOr(ctx, b.logger)
	if b.store == nil {
		return games.DefaultQuestions
	}
	docs, err := b.store.Find(ctx, datastore.CollectionQuestions, nil)
	if err != nil {
		logger.ErrorContext(ctx, "error loading trivia questions", tint.Err(err))
		return games.DefaultQuestions
	}

	questions := make([]games.Question, 0, len(docs))
	for _, doc := range docs {
		var q games.Question
		decoder, decErr := mapstructure.NewDecoder(
			&mapstructure.DecoderConfig{
				WeaklyTypedInput: true,
				Result:           &q,
			},
		)
		if decErr != nil {
			return games.DefaultQuestions
		}
		if decErr = decoder.Decode(map[string]any(doc)); decErr != nil {
			logger.WarnContext(ctx, "skipping undecodable trivia question", tint.Err(decErr), "id", doc[datastore.IDField])
			continue
		}
		if decErr = q.Validate(); decErr != nil {
			logger.WarnContext(ctx, "skipping invalid trivia question", tint.Err(decErr), "id", doc[datastore.IDField])
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return games.DefaultQuestions
	}
	return questions
}
