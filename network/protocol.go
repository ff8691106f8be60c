package network

// Inbound events.
const (
	EventGetRooms        = "getRooms"
	EventCreateRoom      = "createRoom"
	EventJoinRoom        = "joinRoom"
	EventSetReady        = "setReady"
	EventSetRoomConfig   = "setRoomConfig"
	EventSelectCharacter = "selectCharacter"
	EventStartGame       = "startGame"
	EventLeaveRoom       = "leaveRoom"
	EventConnectToGame   = "connectToGame"
	EventMove            = "move"
	EventBombPlaced      = "bombPlaced"
	EventBombExploded    = "bombExploded"
	EventPlayerKilled    = "playerKilled"
	EventLeaveGame       = "leaveGame"
)

// Outbound events.
const (
	EventAck                = "ack"
	EventRoomsList          = "roomsList"
	EventUpdateLobby        = "updateLobby"
	EventGameStart          = "gameStart"
	EventRedirect           = "redirect"
	EventStartTimerGame     = "startTimerGame"
	EventGameTimerTick      = "gameTimerTick"
	EventPlayerMoved        = "playerMoved"
	EventBombExplodedClient = "bombExplodedClient"
	EventPlayers            = "players"
	EventPlayerDied         = "playerDied"
	EventPlayerLeft         = "playerLeft"
	EventGameOver           = "gameOver"
	EventRoomClosed         = "roomClosed"
)
