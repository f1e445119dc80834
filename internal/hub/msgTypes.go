package hub

const (
	ServerDeleted  = "ServerDeleted"
	ServerModified = "ServerModified"

	MemberJoined = "MemberJoined"
	MemberLeft   = "MemberLeft"

	ChannelCreated  = "ChannelCreated"
	ChannelDeleted  = "ChannelDeleted"
	ChannelModified = "ChannelModified"

	MessageCreated  = "MessageCreated"
	MessageDeleted  = "MessageDeleted"
	MessageModified = "MessageModified"

	DirectMessageOpened  = "DirectMessageOpened"
	DirectMessageCreated = "DirectMessageCreated"
)
