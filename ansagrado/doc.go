// Package ansagrado implements Ansagrado, a Discord bot with text
// mini-games and an AI question command.
//
// Key components of the package include:
//
//   - Bot: opens the document store and the Discord gateway session,
//     dispatches interactions, and shuts everything down.
//   - Discord: the gateway session, slash command registration and
//     presence.
//   - OpenAI: an OpenAI-compatible chat client used by /ia and to pick
//     hangman words.
//   - RuntimeConfig: settings kept in the store's config collection,
//     editable while the bot runs.
//   - API: an optional admin HTTP API for health checks, store
//     migration and runtime settings.
//
// The bot supports these commands:
//
//   - /ahorcado, /letra, /adivinar, /pista: hangman.
//   - /ppt, /jugada: rock-paper-scissors between two members.
//   - /trivia: a timed multiple-choice question answered with buttons.
//   - /cancelar: cancels the channel's game.
//   - /ia: asks the chat model a question.
//   - /idioma, /estado, /sincronizar, /ping, /ayuda.
//
// At most one game runs per channel. Every interaction, finished game and
// AI request is written to the store's logs collection. When the remote
// database is unreachable at startup, documents are kept locally until an
// administrator runs /sincronizar.
package ansagrado
