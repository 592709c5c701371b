package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"olafchat/internal/crypto"
)

func TestCanonicalizeSortsKeysAndStripsWhitespace(t *testing.T) {
	raw := []byte(`{ "b": 1, "a": [3, 2, 1], "c": { "z": true, "y": null } }`)
	got, err := Canonicalize(raw)
	require.NoError(t, err)
	require.Equal(t, `{"a":[3,2,1],"b":1,"c":{"y":null,"z":true}}`, string(got))
}

func TestCanonicalizeIsContentPure(t *testing.T) {
	a := []byte(`{"x":1,"y":2}`)
	b := []byte(`{"y":2,"x":1}`)

	canonA, err := Canonicalize(a)
	require.NoError(t, err)
	canonB, err := Canonicalize(b)
	require.NoError(t, err)

	require.Equal(t, string(canonA), string(canonB))
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	raw := []byte(`{"b":1,"a":2}`)
	once, err := Canonicalize(raw)
	require.NoError(t, err)
	twice, err := Canonicalize(once)
	require.NoError(t, err)
	require.Equal(t, string(once), string(twice))
}

func TestCanonicalizeRejectsMalformedJSON(t *testing.T) {
	_, err := Canonicalize([]byte(`{not json`))
	require.Error(t, err)
}

func TestEnvelopeEncodeDecodeRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	data, err := EncodePublicChat("fp-sender", "hello world")
	require.NoError(t, err)

	frame, err := SignPayload(priv, data, 1)
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	require.Equal(t, uint64(1), env.Counter)

	require.NoError(t, VerifyEnvelope(&priv.PublicKey, env))

	payloadType, err := DecodePayloadType(env.Data)
	require.NoError(t, err)
	require.Equal(t, PayloadPublicChat, payloadType)

	pc, err := DecodePublicChat(env.Data)
	require.NoError(t, err)
	require.Equal(t, "fp-sender", pc.Sender)
	require.Equal(t, "hello world", pc.Message)
}

func TestVerifyEnvelopeRejectsWrongKey(t *testing.T) {
	signer, err := crypto.GenerateClientKey()
	require.NoError(t, err)
	other, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	data, err := EncodeHello("fake-pubkey-b64")
	require.NoError(t, err)
	frame, err := SignPayload(signer, data, 1)
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)

	require.Error(t, VerifyEnvelope(&other.PublicKey, env))
}

func TestVerifyEnvelopeRejectsTamperedData(t *testing.T) {
	priv, err := crypto.GenerateClientKey()
	require.NoError(t, err)

	data, err := EncodePublicChat("fp", "original")
	require.NoError(t, err)
	frame, err := SignPayload(priv, data, 1)
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)

	env.Data = json.RawMessage(`{"type":"public_chat","sender":"fp","message":"tampered"}`)
	require.Error(t, VerifyEnvelope(&priv.PublicKey, env))
}

func TestDecodeEnvelopeRejectsWrongType(t *testing.T) {
	raw := []byte(`{"type":"client_list","data":{},"counter":1,"signature":"AA=="}`)
	_, err := DecodeEnvelope(raw)
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsMissingSignature(t *testing.T) {
	raw := []byte(`{"type":"signed_data","data":{"type":"hello"},"counter":1,"signature":""}`)
	_, err := DecodeEnvelope(raw)
	require.Error(t, err)
}

func TestPeekType(t *testing.T) {
	typ, err := PeekType([]byte(`{"type":"client_list_request"}`))
	require.NoError(t, err)
	require.Equal(t, TypeClientListRequest, typ)

	_, err = PeekType([]byte(`{}`))
	require.Error(t, err)
}

func TestDecodeChatRequiresAllFields(t *testing.T) {
	_, err := DecodeChat([]byte(`{"type":"chat","destination_servers":[],"iv":"","symm_keys":[],"chat":""}`))
	require.Error(t, err)
}

func TestDecodeChatPlaintextRequiresParticipants(t *testing.T) {
	_, err := DecodeChatPlaintext([]byte(`{"participants":[],"message":"hi"}`))
	require.Error(t, err)

	cp, err := DecodeChatPlaintext([]byte(`{"participants":["fp1","fp2"],"message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, "fp1", cp.Participants[0])
}

func TestClientListRoundTrip(t *testing.T) {
	servers := []ClientListServer{
		{Address: "127.0.0.1:8001", Clients: []string{"keyA", "keyB"}},
	}
	raw, err := EncodeClientList(servers)
	require.NoError(t, err)

	list, err := DecodeClientList(raw)
	require.NoError(t, err)
	require.Len(t, list.Servers, 1)
	require.Equal(t, "127.0.0.1:8001", list.Servers[0].Address)
	require.ElementsMatch(t, []string{"keyA", "keyB"}, list.Servers[0].Clients)
}
