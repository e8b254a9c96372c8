package server

// notifyMeScript is a browser helper for POST /send-message.
const notifyMeScript = `"use strict";
class NotifyMe {
    static async sendMessage(url, token, message) {
        const response = await fetch(url, {
            method: "POST",
            mode: "cors",
            cache: "no-cache",
            credentials: "omit",
            headers: { "Content-Type": "application/json" },
            redirect: "follow",
            referrerPolicy: "no-referrer",
            body: JSON.stringify({ token, message }),
        });
        const result = await response.json();
        if (!result?.status) {
            throw new RangeError("unexpected response format");
        }
        if (result.status === "OK") {
            return result;
        }
        throw new Error(result.message ? result.status + ": " + result.message : result.status);
    }

    static createSender(url, token) {
        return (message) => NotifyMe.sendMessage(url, token, message);
    }
}
`
