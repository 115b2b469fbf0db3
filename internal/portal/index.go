package portal

// indexHTML is the configuration page, served as one self-contained document
// with no separate assets.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>BLE Simulator Setup</title>
<style>
body{font-family:sans-serif;max-width:480px;margin:2em auto;padding:0 1em}
h1{font-size:1.3em}
label{display:block;margin-top:.8em}
input{width:100%;padding:.4em;box-sizing:border-box}
button{margin-top:1em;padding:.5em 1.2em}
#status{margin-top:1.5em;padding:.8em;background:#f2f2f2;font-size:.9em;white-space:pre-wrap}
.danger{color:#a00}
</style>
</head>
<body>
<h1>BLE Simulator Setup</h1>
<form id="cfg">
<label>WiFi SSID <input name="ssid" required></label>
<label>WiFi Password <input name="password" type="password"></label>
<label>MQTT Host <input name="mqtt_host"></label>
<label>MQTT Port <input name="mqtt_port" type="number" value="1883"></label>
<label>Device ID <input name="device_id" placeholder="(auto)"></label>
<button type="submit">Save &amp; Connect</button>
</form>
<button id="resetDistance">Reset Distance</button>
<button id="factoryReset" class="danger">Factory Reset</button>
<div id="status">loading&hellip;</div>
<script>
const statusEl=document.getElementById('status');
async function refresh(){
  try{
    const r=await fetch('/api/status');
    statusEl.textContent=JSON.stringify(await r.json(),null,2);
  }catch(e){statusEl.textContent='status unavailable';}
}
document.getElementById('cfg').addEventListener('submit',async ev=>{
  ev.preventDefault();
  const f=new FormData(ev.target);
  await fetch('/api/config',{method:'POST',body:JSON.stringify({
    ssid:f.get('ssid'),password:f.get('password'),
    mqtt_host:f.get('mqtt_host'),mqtt_port:+f.get('mqtt_port'),
    device_id:f.get('device_id')})});
  refresh();
});
document.getElementById('resetDistance').addEventListener('click',()=>
  fetch('/api/reset-distance',{method:'POST'}).then(refresh));
document.getElementById('factoryReset').addEventListener('click',()=>{
  if(confirm('Erase configuration and restart?'))
    fetch('/api/reset',{method:'POST'});
});
refresh();setInterval(refresh,5000);
</script>
</body>
</html>
`
