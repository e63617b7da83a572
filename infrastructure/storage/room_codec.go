package storage

import (
	"fmt"
	"math"
	"time"

	"estimo/domain"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Wire layout of a stored room, kept stable across releases:
//
//	Room        { 1: id, 2: created_at, 3: votes_revealed, 4: participants (repeated), 5: revision }
//	Participant { 1: name, 2: is_host, 3: joined_at, 4: vote }
//	Vote        { 1: points (double), 2: token }
//
// Timestamps are google.protobuf.Timestamp sub-messages.
const (
	roomID            protowire.Number = 1
	roomCreatedAt     protowire.Number = 2
	roomVotesRevealed protowire.Number = 3
	roomParticipants  protowire.Number = 4
	roomRevision      protowire.Number = 5

	participantName     protowire.Number = 1
	participantIsHost   protowire.Number = 2
	participantJoinedAt protowire.Number = 3
	participantVote     protowire.Number = 4

	votePoints protowire.Number = 1
	voteToken  protowire.Number = 2
)

func encodeRoom(room domain.Room) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, roomID, protowire.BytesType)
	b = protowire.AppendString(b, string(room.ID))

	b, err := appendTime(b, roomCreatedAt, room.CreatedAt)
	if err != nil {
		return nil, err
	}

	b = protowire.AppendTag(b, roomVotesRevealed, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(room.VotesRevealed))

	for _, p := range room.Participants {
		participant, err := encodeParticipant(p)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, roomParticipants, protowire.BytesType)
		b = protowire.AppendBytes(b, participant)
	}

	b = protowire.AppendTag(b, roomRevision, protowire.VarintType)
	b = protowire.AppendVarint(b, room.Revision)
	return b, nil
}

func encodeParticipant(p domain.Participant) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, participantName, protowire.BytesType)
	b = protowire.AppendString(b, p.Name)
	b = protowire.AppendTag(b, participantIsHost, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(p.IsHost))

	b, err := appendTime(b, participantJoinedAt, p.JoinedAt)
	if err != nil {
		return nil, err
	}

	if p.Vote != nil {
		var vote []byte
		vote = protowire.AppendTag(vote, votePoints, protowire.Fixed64Type)
		vote = protowire.AppendFixed64(vote, math.Float64bits(p.Vote.Points))
		if p.Vote.Token != "" {
			vote = protowire.AppendTag(vote, voteToken, protowire.BytesType)
			vote = protowire.AppendString(vote, string(p.Vote.Token))
		}
		b = protowire.AppendTag(b, participantVote, protowire.BytesType)
		b = protowire.AppendBytes(b, vote)
	}
	return b, nil
}

// appendTime skips zero times so that they decode back to time.Time{}.
func appendTime(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	if t.IsZero() {
		return b, nil
	}
	ts, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp: %w", err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, ts), nil
}

func decodeRoom(data []byte) (domain.Room, error) {
	var room domain.Room
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == roomID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			room.ID = domain.RoomID(v)
			return n, nil
		case num == roomCreatedAt && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			t, err := decodeTime(v)
			room.CreatedAt = t
			return n, err
		case num == roomVotesRevealed && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			room.VotesRevealed = protowire.DecodeBool(v)
			return n, nil
		case num == roomParticipants && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			p, err := decodeParticipant(v)
			if err != nil {
				return n, err
			}
			room.Participants = append(room.Participants, p)
			return n, nil
		case num == roomRevision && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			room.Revision = v
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to decode room: %w", err)
	}
	return room, nil
}

func decodeParticipant(data []byte) (domain.Participant, error) {
	var p domain.Participant
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == participantName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			p.Name = v
			return n, nil
		case num == participantIsHost && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.IsHost = protowire.DecodeBool(v)
			return n, nil
		case num == participantJoinedAt && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			t, err := decodeTime(v)
			p.JoinedAt = t
			return n, err
		case num == participantVote && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			vote, err := decodeVote(v)
			p.Vote = vote
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return p, err
}

func decodeVote(data []byte) (*domain.Vote, error) {
	vote := &domain.Vote{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == votePoints && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			vote.Points = math.Float64frombits(v)
			return n, nil
		case num == voteToken && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			vote.Token = domain.VoteToken(v)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return vote, err
}

func decodeTime(data []byte) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(data, &ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

// walkFields calls fn for every field of a message. fn returns how many bytes
// of b the field value used, or a negative protowire error code.
func walkFields(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}
