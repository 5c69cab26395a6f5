package transport

import "fmt"

// MessageID identifies a control message.
type MessageID uint16

// Category partitions control messages by whether they need a session.
type Category uint8

const (
	// Connectionless messages may be processed before any session exists
	// (pings, server list queries, handshake).
	Connectionless Category = iota
	// ConnectionOriented messages require an established per-channel session
	// and carry an ordering sequence counter.
	ConnectionOriented
)

// String returns a human-readable representation of the Category.
func (c Category) String() string {
	switch c {
	case Connectionless:
		return "connectionless"
	case ConnectionOriented:
		return "connection-oriented"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Connection-oriented message ids.
const (
	MsgIllegal               MessageID = 0
	MsgAcknowledge           MessageID = 1
	MsgJitterBufferSize      MessageID = 10
	MsgRequestJitterBuffer   MessageID = 11
	MsgChannelGain           MessageID = 13
	MsgRequestClientsList    MessageID = 16
	MsgChatText              MessageID = 18
	MsgTransportProps        MessageID = 20
	MsgRequestTransportProps MessageID = 21
	MsgRequestChannelInfos   MessageID = 23
	MsgConnectedClientsList  MessageID = 24
	MsgChannelInfos          MessageID = 25
	MsgLicenceRequired       MessageID = 27
	MsgVersionAndOS          MessageID = 29
	MsgChannelPan            MessageID = 30
	MsgMuteStateChanged      MessageID = 31
	MsgClientID              MessageID = 32
	MsgRecorderState         MessageID = 33
	MsgRequestSplitSupport   MessageID = 34
	MsgSplitMessageSupported MessageID = 35
	MsgSpecialSplitMessage   MessageID = 2001
)

// Connectionless message ids. They occupy [ConnectionlessStart, ConnectionlessEnd).
const (
	ConnectionlessStart MessageID = 1000
	ConnectionlessEnd   MessageID = 2000

	MsgCLPing                 MessageID = 1001
	MsgCLPingWithClientCount  MessageID = 1002
	MsgCLServerFull           MessageID = 1003
	MsgCLRegisterServer       MessageID = 1004
	MsgCLUnregisterServer     MessageID = 1005
	MsgCLServerList           MessageID = 1006
	MsgCLRequestServerList    MessageID = 1007
	MsgCLSendEmptyMessage     MessageID = 1008
	MsgCLEmptyMessage         MessageID = 1009
	MsgCLDisconnection        MessageID = 1010
	MsgCLVersionAndOS         MessageID = 1011
	MsgCLRequestVersionAndOS  MessageID = 1012
	MsgCLConnectedClientsList MessageID = 1013
	MsgCLRequestClientsList   MessageID = 1014
	MsgCLChannelLevelList     MessageID = 1015
	MsgCLRegisterServerResp   MessageID = 1016
	MsgCLRegisterServerEx     MessageID = 1017
	MsgCLReducedServerList    MessageID = 1018
	MsgCLTCPSupported         MessageID = 1019
)

var messageNames = map[MessageID]string{
	MsgIllegal:                "illegal",
	MsgAcknowledge:            "ack",
	MsgJitterBufferSize:       "jitter_buffer_size",
	MsgRequestJitterBuffer:    "req_jitter_buffer_size",
	MsgChannelGain:            "channel_gain",
	MsgRequestClientsList:     "req_conn_clients_list",
	MsgChatText:               "chat_text",
	MsgTransportProps:         "netw_transport_props",
	MsgRequestTransportProps:  "req_netw_transport_props",
	MsgRequestChannelInfos:    "req_channel_infos",
	MsgConnectedClientsList:   "conn_clients_list",
	MsgChannelInfos:           "channel_infos",
	MsgLicenceRequired:        "licence_required",
	MsgVersionAndOS:           "version_and_os",
	MsgChannelPan:             "channel_pan",
	MsgMuteStateChanged:       "mute_state_changed",
	MsgClientID:               "client_id",
	MsgRecorderState:          "recorder_state",
	MsgRequestSplitSupport:    "req_split_mess_support",
	MsgSplitMessageSupported:  "split_mess_supported",
	MsgSpecialSplitMessage:    "special_split_message",
	MsgCLPing:                 "clm_ping_ms",
	MsgCLPingWithClientCount:  "clm_ping_ms_withnumclients",
	MsgCLServerFull:           "clm_server_full",
	MsgCLRegisterServer:       "clm_register_server",
	MsgCLUnregisterServer:     "clm_unregister_server",
	MsgCLServerList:           "clm_server_list",
	MsgCLRequestServerList:    "clm_req_server_list",
	MsgCLSendEmptyMessage:     "clm_send_empty_message",
	MsgCLEmptyMessage:         "clm_empty_message",
	MsgCLDisconnection:        "clm_disconnection",
	MsgCLVersionAndOS:         "clm_version_and_os",
	MsgCLRequestVersionAndOS:  "clm_req_version_and_os",
	MsgCLConnectedClientsList: "clm_conn_clients_list",
	MsgCLRequestClientsList:   "clm_req_conn_clients_list",
	MsgCLChannelLevelList:     "clm_channel_level_list",
	MsgCLRegisterServerResp:   "clm_register_server_resp",
	MsgCLRegisterServerEx:     "clm_register_server_ex",
	MsgCLReducedServerList:    "clm_red_server_list",
	MsgCLTCPSupported:         "clm_tcp_supported",
}

// Category returns the partition the id belongs to. The partition is total:
// every id outside the connectionless range is connection-oriented.
func (id MessageID) Category() Category {
	if id >= ConnectionlessStart && id < ConnectionlessEnd {
		return Connectionless
	}
	return ConnectionOriented
}

// IsConnectionless reports whether id may be processed without a session.
func IsConnectionless(id MessageID) bool {
	return id.Category() == Connectionless
}

// String returns the protocol name of the id, or its number if unnamed.
func (id MessageID) String() string {
	if name, ok := messageNames[id]; ok {
		return name
	}
	return fmt.Sprintf("MessageID(%d)", uint16(id))
}
