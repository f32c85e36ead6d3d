package ansagrado

import (
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/games"
	"github.com/bwmarrin/discordgo"
)

// Slash command names
const (
	CommandPing      = "ping"
	CommandHelp      = "ayuda"
	CommandHangman   = "ahorcado"
	CommandLetter    = "letra"
	CommandGuessWord = "adivinar"
	CommandHint      = "pista"
	CommandRPS       = "ppt"
	CommandRPSPlay   = "jugada"
	CommandTrivia    = "trivia"
	CommandCancel    = "cancelar"
	CommandLanguage  = "idioma"
	CommandAI        = "ia"
	CommandStatus    = "estado"
	CommandSync      = "sincronizar"
)

// Command option names
const (
	optionLetter   = "letra"
	optionWord     = "palabra"
	optionChoice   = "eleccion"
	optionLanguage = "idioma"
	optionPrompt   = "pregunta"
)

// Message component custom IDs. Trivia answers are
// triviaAnswerCustomIDPrefix followed by the option index.
const (
	rpsJoinCustomID            = "ppt:unirse"
	triviaAnswerCustomIDPrefix = "trivia:"
)

const (
	aiPromptMaxLength = 1000
	discordMaxButtons = 5
)

// supportedLanguages maps /idioma choices to their display names
var supportedLanguages = map[string]string{
	"es": "Español",
	"en": "English",
	"pt": "Português",
}

const defaultLanguage = "es"

type commandHelp struct {
	Name        string
	Description string
}

// commandHelpEntries is shown by /ayuda, grouped as listed.
var commandHelpEntries = []commandHelp{
	{CommandPing, "Muestra la latencia del bot"},
	{CommandHangman, "Empieza una partida de ahorcado"},
	{CommandLetter, "Prueba una letra en el ahorcado"},
	{CommandGuessWord, "Intenta adivinar la palabra completa"},
	{CommandHint, "Pide una pista del ahorcado"},
	{CommandRPS, "Empieza una partida de piedra, papel o tijeras"},
	{CommandRPSPlay, "Elige tu jugada en piedra, papel o tijeras"},
	{CommandTrivia, "Responde una pregunta de trivia"},
	{CommandCancel, "Cancela el juego activo del canal"},
	{CommandAI, "Hazle una pregunta a la IA"},
	{CommandLanguage, "Cambia el idioma del servidor"},
	{CommandStatus, "Muestra el estado del bot"},
	{CommandSync, "Migra los datos locales a la base de datos (admin)"},
}

func appCommands() []*discordgo.ApplicationCommand {
	dmPerm := false
	adminPerm := int64(discordgo.PermissionAdministrator)
	minOne := 1
	descriptions := map[string]string{}
	for _, h := range commandHelpEntries {
		descriptions[h.Name] = h.Description
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(games.Choices))
	for _, c := range games.Choices {
		choices = append(
			choices,
			&discordgo.ApplicationCommandOptionChoice{Name: string(c), Value: string(c)},
		)
	}

	languages := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(supportedLanguages))
	for _, code := range []string{"es", "en", "pt"} {
		languages = append(
			languages,
			&discordgo.ApplicationCommandOptionChoice{Name: supportedLanguages[code], Value: code},
		)
	}

	simple := func(name string) *discordgo.ApplicationCommand {
		return &discordgo.ApplicationCommand{
			Name:         name,
			Type:         discordgo.ChatApplicationCommand,
			Description:  descriptions[name],
			DMPermission: &dmPerm,
		}
	}

	withOption := func(
		name string,
		opt *discordgo.ApplicationCommandOption,
	) *discordgo.ApplicationCommand {
		cmd := simple(name)
		cmd.Options = []*discordgo.ApplicationCommandOption{opt}
		return cmd
	}

	helpCmd := simple(CommandHelp)
	helpCmd.Description = "Muestra los comandos disponibles"

	syncCmd := simple(CommandSync)
	syncCmd.DefaultMemberPermissions = &adminPerm

	languageCmd := withOption(
		CommandLanguage,
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optionLanguage,
			Description: "Idioma del servidor",
			Required:    true,
			Choices:     languages,
		},
	)
	languageCmd.DefaultMemberPermissions = &adminPerm

	return []*discordgo.ApplicationCommand{
		simple(CommandPing),
		helpCmd,
		simple(CommandHangman),
		withOption(
			CommandLetter,
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionLetter,
				Description: "Una letra",
				Required:    true,
				MinLength:   &minOne,
				MaxLength:   1,
			},
		),
		withOption(
			CommandGuessWord,
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionWord,
				Description: "La palabra completa",
				Required:    true,
				MinLength:   &minOne,
				MaxLength:   50,
			},
		),
		simple(CommandHint),
		simple(CommandRPS),
		withOption(
			CommandRPSPlay,
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionChoice,
				Description: "Tu jugada",
				Required:    true,
				Choices:     choices,
			},
		),
		simple(CommandTrivia),
		simple(CommandCancel),
		withOption(
			CommandAI,
			&discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionPrompt,
				Description: "Tu pregunta",
				Required:    true,
				MinLength:   &minOne,
				MaxLength:   aiPromptMaxLength,
			},
		),
		languageCmd,
		simple(CommandStatus),
		syncCmd,
	}
}
